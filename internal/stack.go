package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/notesapi"
	"github.com/starford/notehub/internal/querycache"
	"github.com/starford/notehub/internal/session"
)

// Stack is the client stack shared by every surface: the API client, the
// list cache and the mutation flows bound to it.
type Stack struct {
	API     *notesapi.Client
	Cache   *querycache.Cache
	Creator *noteflow.Creator
	Deleter *noteflow.Deleter

	cfg      *Config
	logger   *slog.Logger
	flowOpts []noteflow.Option
}

// NewLogger returns a JSON logger at the configured level.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewStack builds the client stack. notify, if non-nil, observes every
// confirmed create and delete.
func NewStack(app *application, logger *slog.Logger, notify func(noteflow.Event)) (*Stack, error) {
	cfg := app.config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	apiOpts := []notesapi.Option{notesapi.WithLogger(logger)}
	if app.httpClient != nil {
		apiOpts = append(apiOpts, notesapi.WithHTTPClient(app.httpClient))
	}
	client, err := notesapi.New(notesapi.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	}, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	cache := querycache.New(client,
		querycache.WithStaleTime(cfg.Query.StaleTime),
		querycache.WithRetry(cfg.Query.Retry, time.Second),
		querycache.WithLogger(logger),
	)

	flowOpts := []noteflow.Option{noteflow.WithLogger(logger)}
	if notify != nil {
		flowOpts = append(flowOpts, noteflow.WithNotify(notify))
	}

	return &Stack{
		API:     client,
		Cache:   cache,
		Creator: noteflow.NewCreator(client, cache, flowOpts...),
		Deleter: noteflow.NewDeleter(client, cache, flowOpts...),
		cfg:      cfg,
		logger:   logger,
		flowOpts: flowOpts,
	}, nil
}

// NewSession opens a list view over the stack's cache, starting from the
// configured page size and ordering.
func (s *Stack) NewSession() *session.Session {
	return session.New(s.API, s.Cache, session.Config{
		PerPage:  s.cfg.Query.PerPage,
		SortBy:   models.SortBy(s.cfg.Query.SortBy),
		Debounce: s.cfg.Query.Debounce,
	}, session.WithLogger(s.logger), session.WithFlowOptions(s.flowOpts...))
}

// Close releases the cache.
func (s *Stack) Close() {
	s.Cache.Close()
}

// Open applies opts and builds a stack with a logger writing to the
// configured output.
func Open(opts ...Option) (*Stack, *slog.Logger, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := NewLogger(app.config.App.LogLevel, app.logOutput)
	st, err := NewStack(app, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return st, logger, nil
}
