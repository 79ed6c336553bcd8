package question

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/fafmau/quizd/internal/domain"
)

// Loader fetches the full question pool from a backing source.
type Loader interface {
	LoadPool(ctx context.Context) ([]domain.Question, error)
}

// Store caches the parsed pool with a TTL so every quiz block does not
// re-read the backing source.
type Store struct {
	loader Loader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.RWMutex
	pool      []domain.Question
	expiresAt time.Time
}

func NewStore(loader Loader, ttl time.Duration) *Store {
	return &Store{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Pool returns the cached question pool, reloading it once per TTL window.
func (s *Store) Pool(ctx context.Context) ([]domain.Question, error) {
	now := s.clock()

	s.mu.RLock()
	if s.pool != nil && s.expiresAt.After(now) {
		pool := s.pool
		s.mu.RUnlock()
		return pool, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("pool", func() (any, error) {
		now := s.clock()
		s.mu.RLock()
		if s.pool != nil && s.expiresAt.After(now) {
			pool := s.pool
			s.mu.RUnlock()
			return pool, nil
		}
		s.mu.RUnlock()

		pool, err := s.loader.LoadPool(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.pool = pool
		s.expiresAt = now.Add(s.ttl)
		s.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// FileLoader reads the semicolon-delimited question bank from disk.
type FileLoader struct {
	path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

func (l *FileLoader) LoadPool(_ context.Context) ([]domain.Question, error) {
	return ParseFile(l.path)
}

// StaticLoader serves a fixed pool, useful for tests and demos.
type StaticLoader struct {
	pool []domain.Question
}

func NewStaticLoader(pool []domain.Question) *StaticLoader {
	return &StaticLoader{pool: pool}
}

func (l *StaticLoader) LoadPool(context.Context) ([]domain.Question, error) {
	return l.pool, nil
}

// PostgresLoader reads the question bank from the questions table.
type PostgresLoader struct {
	db *pgxpool.Pool
}

func NewPostgresLoader(db *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{db: db}
}

func (l *PostgresLoader) LoadPool(ctx context.Context) ([]domain.Question, error) {
	const stmt = `
SELECT id, prompt, correct_choice, wrong1, wrong2, wrong3
FROM questions
ORDER BY id;`

	rows, err := l.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q       domain.Question
			correct string
			wrongs  [3]string
		)
		if err := r.Scan(&q.ID, &q.Text, &correct, &wrongs[0], &wrongs[1], &wrongs[2]); err != nil {
			return domain.Question{}, err
		}
		q.Correct = correct
		q.Choices = []string{correct, wrongs[0], wrongs[1], wrongs[2]}
		return q, nil
	})
}
