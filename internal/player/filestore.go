package player

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
)

const playersFile = "players.json"

// playerRecord is the on-disk JSON shape, kept compatible with the flat-file
// player files: one record per player with the answered-question ids inline.
type playerRecord struct {
	Pseudo         string    `json:"pseudo"`
	Password       string    `json:"password"`
	Score          int       `json:"score"`
	BestScore      int       `json:"best_score"`
	AskedQuestions []int     `json:"asked_questions"`
	CreatedAt      time.Time `json:"created_at"`
}

// FileStore persists players as a single JSON array on disk. The whole file
// is rewritten on every mutation; the expected data volume is tiny.
type FileStore struct {
	path string

	mu      sync.RWMutex
	players map[string]*domain.Player
	order   []string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("player: create data dir: %w", err)
	}

	s := &FileStore{
		path:    filepath.Join(dir, playersFile),
		players: make(map[string]*domain.Player),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("player: read %s: %w", s.path, err)
	}

	var records []playerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("player: decode %s: %w", s.path, err)
	}

	for _, r := range records {
		p := &domain.Player{
			Name:         r.Pseudo,
			PasswordHash: r.Password,
			Score:        r.Score,
			BestScore:    r.BestScore,
			AnsweredIDs:  r.AskedQuestions,
			CreatedAt:    r.CreatedAt,
		}
		s.players[p.Name] = p
		s.order = append(s.order, p.Name)
	}

	return nil
}

func (s *FileStore) flushLocked() error {
	records := make([]playerRecord, 0, len(s.order))
	for _, name := range s.order {
		p := s.players[name]
		records = append(records, playerRecord{
			Pseudo:         p.Name,
			Password:       p.PasswordHash,
			Score:          p.Score,
			BestScore:      p.BestScore,
			AskedQuestions: p.AnsweredIDs,
			CreatedAt:      p.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("player: encode: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("player: write %s: %w", s.path, err)
	}

	return nil
}

func (s *FileStore) Get(_ context.Context, name string) (*domain.Player, error) {
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

func (s *FileStore) Create(_ context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.Name]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("name already taken: %s", p.Name))
	}

	cp := clone(p)
	s.players[p.Name] = &cp
	s.order = append(s.order, p.Name)
	return s.flushLocked()
}

func (s *FileStore) Update(_ context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.Name]; !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: %s", p.Name))
	}

	cp := clone(p)
	s.players[p.Name] = &cp
	return s.flushLocked()
}

func (s *FileStore) List(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Player, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, clone(s.players[name]))
	}
	return out, nil
}
