// Package internal provides the main application initialization and runtime logic.
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
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/starford/beamline/internal/api"
	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/mcpserver"
	"github.com/starford/beamline/internal/pipeline"
)

// Run starts the watcher daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger, closeLog, err := newLogger(cfg.App, app.logOut)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	lock := flock.New(cfg.Watch.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyRunning, cfg.Watch.LockFile)
	}
	defer lock.Unlock()

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	roots := c.store.Roots()
	logger.Info("Configuration loaded",
		slog.Any("folders", roots),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("workers", cfg.Watch.Workers),
		slog.String("metadata_strategy", cfg.Transform.MetadataStrategy),
		slog.String("rename_policy", cfg.Transform.RenamePolicy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.queue.Run(gCtx)
	})

	g.Go(func() error {
		if err := pipeline.Watch(gCtx, roots, c.queue, logger); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	if cfg.Watch.SweepOnStart {
		g.Go(func() error {
			n, err := pipeline.Sweep(gCtx, roots, c.store, c.db, c.queue, logger)
			if err != nil {
				logger.Warn("sweep: failed", slog.String("error", err.Error()))
				return nil
			}
			logger.Info("sweep: done", slog.Int("submitted", n))
			return nil
		})
	}

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled {
		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newRootRouter(cfg, c),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()

		if httpServer != nil {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully")
	return nil
}

// newRootRouter mounts health checks, metrics and the API.
func newRootRouter(cfg *Config, c *components) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"journal unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", c.metrics.Handler())
	r.Mount("/api", api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker))
	return r
}

// ServeMCP runs the MCP server on stdio. Files queued through process_file
// are handled by an in-process dispatcher; nothing is watched.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger, closeLog, err := newLogger(app.config.App, app.logOut)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	c, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.queue.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	return mcpserver.New(c.svc, app.version).ServeStdio()
}
