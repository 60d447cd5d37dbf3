package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nightingale-health/backend/internal/config"
	"github.com/nightingale-health/backend/internal/handler"
	"github.com/nightingale-health/backend/internal/service/ai"
	"github.com/nightingale-health/backend/internal/service/care"
	clinicianservice "github.com/nightingale-health/backend/internal/service/clinician"
	profileservice "github.com/nightingale-health/backend/internal/service/profile"
	"github.com/nightingale-health/backend/internal/service/session"
	"github.com/nightingale-health/backend/internal/service/triage"
	"github.com/nightingale-health/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env when present; the process environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Log)

	st, cleanup, err := newStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer cleanup()

	locks := store.NewConversationLocks()
	sessions := session.NewService(st, locks, logger)
	profiles := profileservice.NewService(st, logger)
	triageSvc := triage.NewService(st, sessions, logger)
	views := clinicianservice.NewService(st)

	var (
		extractor care.FactExtractor
		assessor  care.RiskAssessor
		replier   care.ReplyGenerator
	)
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("AI service unavailable, falling back to keyword adapters")
		} else {
			logger.Info().Msg("AI adapters initialized")
			extractor, assessor, replier = aiSvc, aiSvc, aiSvc
		}
	} else {
		logger.Info().Msg("ark credentials not configured, using keyword adapters")
	}
	if extractor == nil {
		heuristic := ai.NewHeuristic()
		extractor, assessor, replier = heuristic, heuristic, heuristic
	}

	careSvc := care.NewService(sessions, profiles, triageSvc,
		extractor, assessor, replier, cfg.AI.AdapterTimeout, logger)

	router := handler.NewRouter(careSvc, sessions, profiles, views, triageSvc, cfg.Auth.JWTSecret, logger)

	startServer(ctx, cfg.Server, router, logger)
	careSvc.Wait()
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// newStore picks postgres when DATABASE_URL is set, the in-memory store
// otherwise.
func newStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.URL == "" {
		logger.Info().Msg("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.NewPool(ctx, cfg.URL, cfg.MaxConns, cfg.MinConns)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("postgres store ready")
	return store.NewPostgres(pool), pool.Close, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Msg("nightingale backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
