package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fafmau/quizd/internal/domain"
	"github.com/fafmau/quizd/internal/event"
	"github.com/fafmau/quizd/internal/player"
)

const (
	publishInterval = 200 * time.Millisecond
	snapshotTTL     = 5 * time.Second
)

type Config struct {
	EventBus *event.Bus
	Players  *player.Service
	// Redis is optional; without it every read recomputes from the player
	// store and publishes are not throttled.
	Redis  redis.UniversalClient
	Prefix string
	// Limit caps the number of entries returned by GetLeaderboard; 0 means
	// no cap.
	Limit int
}

type Service struct {
	eb      *event.Bus
	players *player.Service
	redis   redis.UniversalClient
	prefix  string
	limit   int
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		players: c.Players,
		redis:   c.Redis,
		prefix:  c.Prefix,
		limit:   c.Limit,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.onScoreUpdated(ctx, e.(domain.EventScoreUpdated))
	})

	return s
}

// Rank projects players into leaderboard entries sorted by score
// descending. The sort is stable: players with equal scores keep the store
// order, since no secondary key is defined.
func Rank(players []domain.Player) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		pct := 0
		if n := len(p.AnsweredIDs); n > 0 {
			pct = p.Score * 100 / n
		}
		entries = append(entries, domain.LeaderboardEntry{
			Name:          p.Name,
			Score:         p.Score,
			TotalAnswered: len(p.AnsweredIDs),
			Percentage:    pct,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	return entries
}

// GetLeaderboard returns the ranked view. A short-lived redis snapshot
// serves repeated reads; the player store stays the truth.
func (s *Service) GetLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	if s.redis != nil {
		if l, ok := s.cached(ctx); ok {
			return s.truncate(l), nil
		}
	}

	l, err := s.recompute(ctx)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.cache(ctx, l)
	}

	return s.truncate(l), nil
}

func (s *Service) recompute(ctx context.Context) (*domain.Leaderboard, error) {
	players, err := s.players.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	return &domain.Leaderboard{
		Entries:   Rank(players),
		UpdatedAt: time.Now(),
	}, nil
}

func (s *Service) truncate(l *domain.Leaderboard) *domain.Leaderboard {
	if s.limit <= 0 || len(l.Entries) <= s.limit {
		return l
	}
	cp := *l
	cp.Entries = l.Entries[:s.limit]
	return &cp
}

func (s *Service) cached(ctx context.Context) (*domain.Leaderboard, bool) {
	data, err := s.redis.Get(ctx, s.snapshotKey()).Bytes()
	if err != nil {
		return nil, false
	}

	var l domain.Leaderboard
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, false
	}
	return &l, true
}

func (s *Service) cache(ctx context.Context, l *domain.Leaderboard) {
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	// Best effort: a failed cache write only costs a recompute later.
	_ = s.redis.Set(ctx, s.snapshotKey(), data, snapshotTTL).Err()
}

// onScoreUpdated refreshes the cached snapshot and publishes a leaderboard
// event. With redis available publishes are coalesced over a short window
// since many score updates can land close together.
func (s *Service) onScoreUpdated(ctx context.Context, e domain.EventScoreUpdated) error {
	l, err := s.recompute(ctx)
	if err != nil {
		return err
	}

	if s.redis != nil {
		s.cache(ctx, l)

		ok, err := s.redis.SetNX(ctx, s.throttleKey(), e.Score.UpdateTime.UnixMilli(), publishInterval).Result()
		if err != nil {
			return fmt.Errorf("setnx: %w", err)
		}
		if !ok {
			return nil
		}
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) snapshotKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) throttleKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
