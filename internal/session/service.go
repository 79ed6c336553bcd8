package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
	"github.com/fafmau/quizd/internal/event"
	"github.com/fafmau/quizd/internal/player"
	"github.com/fafmau/quizd/internal/question"
)

type Config struct {
	Players   *player.Service
	Questions *question.Store
	EventBus  *event.Bus
	BlockSize int
}

// Service tracks quiz sessions in a server-side token map. One session per
// player identity: a fresh login revokes the previous token.
type Service struct {
	players   *player.Service
	questions *question.Store
	eb        *event.Bus
	blockSize int

	mu       sync.Mutex
	sessions map[string]*Session
	byPlayer map[string]string
}

const defaultBlockSize = 20

func NewService(c Config) *Service {
	size := c.BlockSize
	if size <= 0 {
		size = defaultBlockSize
	}

	return &Service{
		players:   c.Players,
		questions: c.Questions,
		eb:        c.EventBus,
		blockSize: size,
		sessions:  make(map[string]*Session),
		byPlayer:  make(map[string]string),
	}
}

// Begin creates a session for the player and returns its token. Any
// existing session for the same player is destroyed, along with whatever
// block progress it held.
func (s *Service) Begin(_ context.Context, playerName string) (string, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byPlayer[playerName]; ok {
		delete(s.sessions, old)
	}

	ss := &Session{
		Token:      token.String(),
		PlayerName: playerName,
	}
	s.sessions[ss.Token] = ss
	s.byPlayer[playerName] = ss.Token

	return ss.Token, nil
}

// End destroys the session. In-progress block state is discarded; only
// completed blocks are persisted.
func (s *Service) End(_ context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[token]
	if !ok {
		return
	}
	delete(s.sessions, token)
	delete(s.byPlayer, ss.PlayerName)
}

// Resolve returns the session for a token.
func (s *Service) Resolve(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, ok := s.sessions[token]
	if !ok {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("unknown session token"))
	}
	return ss, nil
}

type StartBlockRequest struct {
	Token string
	// Size caps the block length; 0 means the configured default.
	Size int
}

type StartBlockResponse struct {
	// AllAnswered is set when the player has exhausted the pool; no block
	// is started and the session state is untouched.
	AllAnswered bool     `json:"all_answered"`
	Session     Snapshot `json:"session"`
}

// StartBlock draws a block of unanswered questions and moves the session to
// InProgress. A second start while a block is in progress is rejected.
func (s *Service) StartBlock(ctx context.Context, req StartBlockRequest) (*StartBlockResponse, error) {
	ss, err := s.Resolve(req.Token)
	if err != nil {
		return nil, err
	}

	p, err := s.players.Get(ctx, ss.PlayerName)
	if err != nil {
		return nil, err
	}

	pool, err := s.questions.Pool(ctx)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}

	size := req.Size
	if size <= 0 || size > s.blockSize {
		size = s.blockSize
	}

	answered := make(map[int]struct{}, len(p.AnsweredIDs))
	for _, id := range p.AnsweredIDs {
		answered[id] = struct{}{}
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state == InProgress {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("a quiz block is already in progress"))
	}

	block := drawBlock(pool, answered, size)
	if len(block) == 0 {
		return &StartBlockResponse{
			AllAnswered: true,
			Session:     ss.snapshotLocked(),
		}, nil
	}

	ss.state = InProgress
	ss.questions = block
	ss.index = 0
	ss.score = 0
	ss.answered = ss.answered[:0]

	return &StartBlockResponse{Session: ss.snapshotLocked()}, nil
}

// QuestionView is a question as presented to the player: shuffled choices,
// correct answer withheld.
type QuestionView struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
	Index   int      `json:"index"`
	Total   int      `json:"total"`
}

// CurrentQuestion returns the question at the block cursor, or ok=false
// when no block is in progress.
func (s *Service) CurrentQuestion(_ context.Context, token string) (*QuestionView, bool, error) {
	ss, err := s.Resolve(token)
	if err != nil {
		return nil, false, err
	}

	q, ok := ss.current()
	if !ok {
		return nil, false, nil
	}

	snap := ss.Snapshot()
	return &QuestionView{
		ID:      q.ID,
		Text:    q.Text,
		Choices: q.Choices,
		Index:   snap.Index,
		Total:   snap.Total,
	}, true, nil
}

type AnswerRequest struct {
	Token  string
	Choice string
}

type AnswerResponse struct {
	Correct   bool     `json:"correct"`
	Completed bool     `json:"completed"`
	Session   Snapshot `json:"session"`
}

// Answer grades the selected choice against the current question, records
// the question into the block's answered set, and advances the cursor.
// Each question visit is one-shot: the cursor moves whether or not the
// answer was correct, so a question cannot be re-submitted. When the cursor
// reaches the end of the block the session transitions to Completed, the
// player record is persisted exactly once, and a score event is published.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	ss, err := s.Resolve(req.Token)
	if err != nil {
		return nil, err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state != InProgress {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no quiz block in progress"))
	}

	q := ss.questions[ss.index]
	correct := IsCorrect(req.Choice, q.Correct)
	if correct {
		ss.score++
	}
	ss.answered = append(ss.answered, q.ID)
	ss.index++

	resp := &AnswerResponse{Correct: correct}

	if ss.index == len(ss.questions) {
		ss.state = Completed

		p, err := s.players.RecordResult(ctx, ss.PlayerName, ss.score, ss.answered)
		if err != nil {
			return nil, fmt.Errorf("persist block result: %w", err)
		}

		s.eb.Publish(ctx, domain.EventScoreUpdated{
			Score: domain.Score{
				PlayerName:    p.Name,
				Total:         p.Score,
				TotalAnswered: len(p.AnsweredIDs),
				BlockScore:    ss.score,
				UpdateTime:    time.Now(),
			},
		})

		resp.Completed = true
	}

	resp.Session = ss.snapshotLocked()
	return resp, nil
}
