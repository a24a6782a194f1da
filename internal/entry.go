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
	"golang.org/x/sync/errgroup"

	"github.com/starford/notehub/internal/api"
	"github.com/starford/notehub/internal/mcpserver"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/sse"
)

// NewHTTPHandler builds the gateway router: health checks, the REST API and
// the event stream under /api.
func NewHTTPHandler(cfg *Config, st *Stack, broker *sse.Broker) http.Handler {
	svc := api.NewService(st.Cache, st.Creator, st.Deleter)
	var events http.Handler
	if broker != nil {
		events = broker
	}
	apiRouter := api.NewRouter(svc, cfg.Gateway.Auth.Gateway(), events)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	return r
}

// Run starts the local gateway with the given options and blocks until ctx
// ends or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(cfg.App.LogLevel, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Gateway.HTTP.Address()),
		slog.String("base_url", cfg.API.BaseURL),
		slog.String("auth_mode", cfg.Gateway.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	st, err := NewStack(app, logger, func(ev noteflow.Event) {
		broker.PublishNoteEvent(ev.Kind, ev.Note)
	})
	if err != nil {
		return err
	}
	defer st.Close()

	unsubscribe := st.Cache.Subscribe(broker.PublishCacheEvent)
	defer unsubscribe()

	httpServer := &http.Server{
		Addr:              cfg.Gateway.HTTP.Address(),
		Handler:           NewHTTPHandler(cfg, st, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.Gateway.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Gateway.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		logger.Info("Shutting down server...")

		// Close the broker first so open event streams end and Shutdown
		// does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr because stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := NewLogger(app.config.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	st, err := NewStack(app, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcpserver.New(st.Cache, st.Creator, st.Deleter)
	logger.Info("MCP server starting on stdio", slog.String("base_url", app.config.API.BaseURL))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
