package player

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
)

// Store abstracts player persistence. Implementations return
// errors.CodeNotFound for unknown names and errors.CodeAlreadyExists for
// duplicate registration. List returns players in insertion order; the
// leaderboard relies on that order for stable tie-breaking.
type Store interface {
	Get(ctx context.Context, name string) (*domain.Player, error)
	Create(ctx context.Context, p *domain.Player) error
	Update(ctx context.Context, p *domain.Player) error
	List(ctx context.Context) ([]domain.Player, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		locks: make(map[string]*sync.Mutex),
	}
}

const maxNameLen = 50

// Register creates a new player with a bcrypt-hashed credential.
func (s *Service) Register(ctx context.Context, name, password string) (*domain.Player, error) {
	if name == "" || password == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("name and password are required"))
	}
	if len(name) > maxNameLen {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("name exceeds %d characters", maxNameLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal(err)
	}

	p := &domain.Player{
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Authenticate verifies the credential and returns the player. Unknown
// names and wrong passwords both surface as CodeUnauthenticated so the
// response does not reveal which one failed.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*domain.Player, error) {
	p, err := s.store.Get(ctx, name)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid name or password"))
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid name or password"))
	}

	return p, nil
}

// Get returns the player by name.
func (s *Service) Get(ctx context.Context, name string) (*domain.Player, error) {
	return s.store.Get(ctx, name)
}

// List returns all players in insertion order.
func (s *Service) List(ctx context.Context) ([]domain.Player, error) {
	return s.store.List(ctx)
}

// RecordResult folds a completed block into the player record: the block
// score is added to the running total, the best single-block score is kept,
// and the answered set is unioned without duplicates. The read-modify-write
// is serialized per player so racing blocks cannot lose updates.
func (s *Service) RecordResult(ctx context.Context, name string, blockScore int, answeredIDs []int) (*domain.Player, error) {
	unlock := s.lock(name)
	defer unlock()

	p, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	p.Score += blockScore
	if blockScore > p.BestScore {
		p.BestScore = blockScore
	}

	seen := make(map[int]struct{}, len(p.AnsweredIDs))
	for _, id := range p.AnsweredIDs {
		seen[id] = struct{}{}
	}
	for _, id := range answeredIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		p.AnsweredIDs = append(p.AnsweredIDs, id)
	}

	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Service) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = new(sync.Mutex)
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
