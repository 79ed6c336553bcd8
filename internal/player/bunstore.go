package player

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/errors"
)

type playerModel struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	Score        int       `bun:"score,notnull,default:0"`
	BestScore    int       `bun:"best_score,notnull,default:0"`
	AnsweredIDs  []int     `bun:"answered_ids,type:jsonb"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (m *playerModel) toDomain() domain.Player {
	return domain.Player{
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Score:        m.Score,
		BestScore:    m.BestScore,
		AnsweredIDs:  append([]int(nil), m.AnsweredIDs...),
		CreatedAt:    m.CreatedAt,
	}
}

// BunStore persists players in Postgres through bun.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) Get(ctx context.Context, name string) (*domain.Player, error) {
	var m playerModel
	err := s.db.NewSelect().Model(&m).Where("name = ?", name).Scan(ctx)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: %s", name))
	}
	if err != nil {
		return nil, err
	}

	p := m.toDomain()
	return &p, nil
}

func (s *BunStore) Create(ctx context.Context, p *domain.Player) error {
	m := &playerModel{
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Score:        p.Score,
		BestScore:    p.BestScore,
		AnsweredIDs:  p.AnsweredIDs,
		CreatedAt:    p.CreatedAt,
	}

	_, err := s.db.NewInsert().Model(m).Exec(ctx)

	const codeUniqueViolation = "23505"
	var pgErr pgdriver.Error
	if stderrors.As(err, &pgErr) && pgErr.Field('C') == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("name already taken: %s", p.Name),
			errors.WithCause(err))
	}

	return err
}

func (s *BunStore) Update(ctx context.Context, p *domain.Player) error {
	m := &playerModel{
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Score:        p.Score,
		BestScore:    p.BestScore,
		AnsweredIDs:  p.AnsweredIDs,
	}

	res, err := s.db.NewUpdate().Model(m).
		Column("password_hash", "score", "best_score", "answered_ids").
		Where("name = ?", p.Name).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: %s", p.Name))
	}

	return nil
}

func (s *BunStore) List(ctx context.Context) ([]domain.Player, error) {
	var models []playerModel
	if err := s.db.NewSelect().Model(&models).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Player, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}
