package question_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/question"
)

func TestParse(t *testing.T) {
	type (
		inputs struct {
			source string
		}

		outputs struct {
			questions []domain.Question
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a valid 5-field line should produce one question with 4 choices": {
			arrange: func() inputs {
				return inputs{source: "2+2?;4;3;5;22\n"}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.questions, 1)
				q := out.questions[0]
				assert.Equal(t, 1, q.ID)
				assert.Equal(t, "2+2?", q.Text)
				assert.Equal(t, "4", q.Correct)
				assert.ElementsMatch(t, []string{"4", "3", "5", "22"}, q.Choices)
			},
		},

		"malformed lines should be skipped without affecting valid ones": {
			arrange: func() inputs {
				return inputs{source: strings.Join([]string{
					"only;four;fields;here",
					"2+2?;4;3;5;22",
					"way;too;many;fields;on;this;line",
					"",
					"Capital of France?;Paris;Lyon;Marseille;Lille",
				}, "\n")}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.questions, 2)
				assert.Equal(t, "2+2?", out.questions[0].Text)
				assert.Equal(t, "Capital of France?", out.questions[1].Text)
				// IDs follow valid-line position.
				assert.Equal(t, 1, out.questions[0].ID)
				assert.Equal(t, 2, out.questions[1].ID)
			},
		},

		"an empty prompt or correct choice should be dropped": {
			arrange: func() inputs {
				return inputs{source: ";4;3;5;22\nq?;;3;5;22\n"}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Empty(t, out.questions)
			},
		},

		"surrounding whitespace should be trimmed per field": {
			arrange: func() inputs {
				return inputs{source: " 2+2? ; 4 ;3;5;22\n"}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.questions, 1)
				assert.Equal(t, "2+2?", out.questions[0].Text)
				assert.Equal(t, "4", out.questions[0].Correct)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			questions, err := question.Parse(strings.NewReader(in.source))
			require.NoError(t, err)

			tt.assert(t, outputs{questions: questions})
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	const source = "2+2?;4;3;5;22\nbad;line\nCapital of France?;Paris;Lyon;Marseille;Lille\n"

	first, err := question.Parse(strings.NewReader(source))
	require.NoError(t, err)

	second, err := question.Parse(strings.NewReader(source))
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestShuffled(t *testing.T) {
	q := domain.Question{
		ID:      1,
		Text:    "2+2?",
		Choices: []string{"4", "3", "5", "22"},
		Correct: "4",
	}

	shuffled := question.Shuffled(q)

	assert.ElementsMatch(t, q.Choices, shuffled.Choices, "shuffling must keep the same choices")
	assert.Contains(t, shuffled.Choices, shuffled.Correct, "the correct choice must survive by value")
	assert.Equal(t, []string{"4", "3", "5", "22"}, q.Choices, "the pool copy must not be mutated")
}

func TestStore_PoolCachesWithTTL(t *testing.T) {
	loader := &countingLoader{pool: []domain.Question{
		{ID: 1, Text: "2+2?", Choices: []string{"4", "3", "5", "22"}, Correct: "4"},
	}}

	s := question.NewStore(loader, time.Minute)

	for i := 0; i < 3; i++ {
		pool, err := s.Pool(context.Background())
		require.NoError(t, err)
		require.Len(t, pool, 1)
	}

	require.Equal(t, 1, loader.calls, "the loader should be hit once within the TTL")
}

type countingLoader struct {
	pool  []domain.Question
	calls int
}

func (l *countingLoader) LoadPool(context.Context) ([]domain.Question, error) {
	l.calls++
	return l.pool, nil
}
