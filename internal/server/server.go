package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	"github.com/fafmau/quizd/internal/api"
	"github.com/fafmau/quizd/internal/event"
	"github.com/fafmau/quizd/internal/leaderboard"
	"github.com/fafmau/quizd/internal/player"
	"github.com/fafmau/quizd/internal/question"
	"github.com/fafmau/quizd/internal/session"
	"github.com/fafmau/quizd/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Questions struct {
		// Source selects the question bank backend: "file" or "postgres".
		Source    string
		File      string
		TTL       time.Duration
		BlockSize int
	}

	Storage struct {
		// Driver selects the player store backend: "memory", "file" or
		// "postgres".
		Driver string
		Dir    string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Leaderboard struct {
		Limit int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis redis.UniversalClient
		pgx   *pgxpool.Pool
		bun   *bun.DB
	}

	service struct {
		players     *player.Service
		sessions    *session.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if len(s.c.Redis.Addrs) > 0 {
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if s.c.Storage.Driver == "postgres" || s.c.Questions.Source == "postgres" {
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

// PostgresDSN builds the connection string shared by the bun and pgx
// clients and the migrate command.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.Postgres.User, c.Postgres.Pass, c.Postgres.Addr, c.Postgres.Name)
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The player store goes through bun; the question loader uses pgx
	// directly for its single read query.
	if s.c.Storage.Driver == "postgres" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(s.c.PostgresDSN())))
		db := bun.NewDB(sqldb, pgdialect.New())
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("bun: ping: %w", err)
		}
		s.infra.bun = db
	}

	if s.c.Questions.Source == "postgres" {
		cc, err := pgxpool.ParseConfig(s.c.PostgresDSN())
		if err != nil {
			return fmt.Errorf("pgx: parse config: %w", err)
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return fmt.Errorf("pgx: connect: %w", err)
		}

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("pgx: ping: %w", err)
		}
		s.infra.pgx = db
	}

	return nil
}

func (s *Server) initService() error {
	store, err := s.playerStore()
	if err != nil {
		return err
	}

	s.service.players = player.NewService(player.Config{
		Store: store,
	})

	ttl := s.c.Questions.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	questions := question.NewStore(s.questionLoader(), ttl)

	s.service.sessions = session.NewService(session.Config{
		Players:   s.service.players,
		Questions: questions,
		EventBus:  s.eb,
		BlockSize: s.c.Questions.BlockSize,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Players:  s.service.players,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
		Limit:    s.c.Leaderboard.Limit,
	})

	return nil
}

func (s *Server) playerStore() (player.Store, error) {
	switch s.c.Storage.Driver {
	case "postgres":
		return player.NewBunStore(s.infra.bun), nil
	case "file":
		return player.NewFileStore(s.c.Storage.Dir)
	case "", "memory":
		return player.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}
}

func (s *Server) questionLoader() question.Loader {
	if s.c.Questions.Source == "postgres" {
		return question.NewPostgresLoader(s.infra.pgx)
	}
	return question.NewFileLoader(s.c.Questions.File)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:      e,
		EventBus:    s.eb,
		Players:     s.service.players,
		Sessions:    s.service.sessions,
		Leaderboard: s.service.leaderboard,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.pgx != nil {
		s.infra.pgx.Close()
	}
	if s.infra.bun != nil {
		if err := s.infra.bun.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close postgres failed", "error", err)
		}
	}
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
