// Package internal wires configuration, storage, indexing, and transports
// into a runnable application.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/mharlow/annex/internal/annotation"
	"github.com/mharlow/annex/internal/api"
	"github.com/mharlow/annex/internal/index"
	"github.com/mharlow/annex/internal/masterindex"
	"github.com/mharlow/annex/internal/mcpserver"
	"github.com/mharlow/annex/internal/sse"
	"github.com/mharlow/annex/internal/storage"
)

type services struct {
	cfg    *Config
	logger *slog.Logger
	db     *index.DB
	store  storage.Provider
	holder *masterindex.Holder
	svc    *annotation.Service
}

func setup(opts ...Option) (*services, error) {
	app := &application{
		config: NewDefaultConfig(),
	}
	for _, opt := range opts {
		opt(app)
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create corpus directory: %w", err)
	}

	store, err := storage.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	// Index the corpus up front so the first snapshot is complete. A failure
	// here is not fatal: the watcher will converge on the corpus state.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial corpus sync failed", "error", err)
	}

	holder := masterindex.NewHolder()
	if _, err := index.Rebuild(db, holder, logger); err != nil {
		logger.Warn("initial index build failed", "error", err)
	}

	svc := annotation.NewService(store, db, holder, cfg.Analyst.Name, logger)

	return &services{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  store,
		holder: holder,
		svc:    svc,
	}, nil
}

// Run starts the HTTP server and the corpus watcher, and blocks until the
// context is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	s, err := setup(opts...)
	if err != nil {
		return err
	}
	defer s.db.Close()

	cfg, logger := s.cfg, s.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(s.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoints stay outside the auth group.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Mount("/api", apiRouter)

	srv := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cb := func(kind, path string) {
			if _, err := index.Rebuild(s.db, s.holder, logger); err != nil {
				logger.Error("index rebuild after watch event failed", "error", err)
			}
			broker.PublishDocumentEvent(kind, path)
		}
		if err := index.Watch(gctx, s.db, s.store, cfg.Corpus.Path, logger, cb); err != nil {
			return fmt.Errorf("corpus watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr, "auth", cfg.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// RunMCP starts the MCP server on stdin/stdout. The corpus watcher is not
// started: stdio sessions are short-lived and the index is synced at startup.
func RunMCP(ctx context.Context, opts ...Option) error {
	s, err := setup(opts...)
	if err != nil {
		return err
	}
	defer s.db.Close()

	s.logger.Info("mcp server starting", "transport", "stdio")
	return mcpserver.New(s.svc).ServeStdio()
}
