package player

import (
	"context"
	"sync"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
)

// MemoryStore keeps players in process memory. Insertion order is tracked
// explicitly so List stays stable for leaderboard tie-breaking.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]*domain.Player
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*domain.Player),
	}
}

func (s *MemoryStore) Get(_ context.Context, name string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: %s", name))
	}

	cp := clone(p)
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.Name]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("name already taken: %s", p.Name))
	}

	cp := clone(p)
	s.players[p.Name] = &cp
	s.order = append(s.order, p.Name)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.Name]; !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: %s", p.Name))
	}

	cp := clone(p)
	s.players[p.Name] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Player, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, clone(s.players[name]))
	}
	return out, nil
}

func clone(p *domain.Player) domain.Player {
	cp := *p
	cp.AnsweredIDs = append([]int(nil), p.AnsweredIDs...)
	return cp
}
