package question

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/fafmau/quizd/internal/domain"
)

const fieldsPerLine = 5

// ParseLine parses one question-bank line of the form
// "prompt;correct;wrong1;wrong2;wrong3". The correct answer is always the
// first choice field before shuffling; it is carried by value so the choice
// order can be randomized later.
func ParseLine(id int, line string) (domain.Question, bool) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) != fieldsPerLine {
		return domain.Question{}, false
	}

	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" || parts[1] == "" {
		return domain.Question{}, false
	}

	return domain.Question{
		ID:      id,
		Text:    parts[0],
		Choices: parts[1:fieldsPerLine],
		Correct: parts[1],
	}, true
}

// Parse reads the whole question bank from r. Malformed lines are dropped
// without error; IDs are assigned by valid-line position, so re-parsing an
// unchanged source is idempotent.
func Parse(r io.Reader) ([]domain.Question, error) {
	var questions []domain.Question

	sc := bufio.NewScanner(r)
	id := 1
	for sc.Scan() {
		q, ok := ParseLine(id, sc.Text())
		if !ok {
			continue
		}
		questions = append(questions, q)
		id++
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("question: read: %w", err)
	}

	return questions, nil
}

// ParseFile parses the question bank at path.
func ParseFile(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("question: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Shuffled returns a copy of q with its choices in a fresh random order.
// The pool copy is never mutated.
func Shuffled(q domain.Question) domain.Question {
	choices := make([]string, len(q.Choices))
	copy(choices, q.Choices)
	rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	q.Choices = choices
	return q
}
