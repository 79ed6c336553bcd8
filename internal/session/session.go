package session

import (
	"math/rand"
	"sync"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/question"
)

// State is the lifecycle of a quiz block within a session.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return "not_started"
	}
}

// IsCorrect compares the selected choice to the correct one. Exact string
// equality as loaded, no normalization, no partial credit.
func IsCorrect(selected, correct string) bool {
	return selected == correct
}

// Session is the per-player quiz state, held server-side and keyed by an
// opaque token. A session carries at most one quiz block at a time.
//
// Invariant while a block is active: score <= index <= len(questions).
type Session struct {
	Token      string
	PlayerName string

	mu        sync.Mutex
	state     State
	questions []domain.Question
	index     int
	score     int
	answered  []int
}

// Snapshot is a read-only view of the session for the transport layer.
type Snapshot struct {
	PlayerName string `json:"player"`
	State      string `json:"state"`
	Index      int    `json:"index"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		PlayerName: s.PlayerName,
		State:      s.state.String(),
		Index:      s.index,
		Score:      s.score,
		Total:      len(s.questions),
	}
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// current returns the question at the cursor, or false when no block is in
// progress or the block is exhausted.
func (s *Session) current() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != InProgress || s.index >= len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[s.index], true
}

// drawBlock selects a random subset (without replacement) of the questions
// the player has not answered yet, shuffling each drawn question's choices
// for presentation. Returns at most size questions.
func drawBlock(pool []domain.Question, answered map[int]struct{}, size int) []domain.Question {
	unanswered := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := answered[q.ID]; ok {
			continue
		}
		unanswered = append(unanswered, q)
	}

	rand.Shuffle(len(unanswered), func(i, j int) {
		unanswered[i], unanswered[j] = unanswered[j], unanswered[i]
	})

	if size > len(unanswered) {
		size = len(unanswered)
	}

	block := make([]domain.Question, 0, size)
	for _, q := range unanswered[:size] {
		block = append(block, question.Shuffled(q))
	}
	return block
}
