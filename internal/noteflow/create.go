package noteflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// NoteCreator submits new notes.
type NoteCreator interface {
	CreateNote(ctx context.Context, draft models.FormDraft) (models.Note, error)
}

// NoteDeleter removes notes.
type NoteDeleter interface {
	DeleteNote(ctx context.Context, id string) (models.Note, error)
}

// Invalidator marks cached list pages stale.
type Invalidator interface {
	Invalidate(prefix string) int
}

// Event kinds reported to observers.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// Event reports a confirmed mutation.
type Event struct {
	Kind string
	Note models.Note
}

// Option is a functional option shared by both flows.
type Option func(*options)

type options struct {
	logger *slog.Logger
	notify func(Event)
}

// WithLogger sets the flow logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotify registers fn to run after every confirmed mutation.
func WithNotify(fn func(Event)) Option {
	return func(o *options) {
		o.notify = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Creator drives the creation form: a draft exists between Open and either
// a successful Submit or Cancel.
type Creator struct {
	api  NoteCreator
	inv  Invalidator
	opts options

	mu         sync.Mutex
	draft      *models.FormDraft
	submitting bool
	lastErr    error
}

// NewCreator returns a creation flow that invalidates inv on success.
func NewCreator(api NoteCreator, inv Invalidator, opts ...Option) *Creator {
	return &Creator{api: api, inv: inv, opts: buildOptions(opts)}
}

// Fork returns a flow with the same API, cache and options but its own
// form state. Callers serving many independent users fork once per request.
func (c *Creator) Fork() *Creator {
	return &Creator{api: c.api, inv: c.inv, opts: c.opts}
}

// Open starts a draft, or returns the one already open.
func (c *Creator) Open() models.FormDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		d := models.NewFormDraft()
		c.draft = &d
		c.lastErr = nil
	}
	return *c.draft
}

// IsOpen reports whether a draft exists.
func (c *Creator) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft != nil
}

// Draft returns the open draft.
func (c *Creator) Draft() (models.FormDraft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return models.FormDraft{}, false
	}
	return *c.draft, true
}

// SetDraft replaces the open draft's values.
func (c *Creator) SetDraft(d models.FormDraft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return apperr.ErrNoDraft
	}
	*c.draft = d
	return nil
}

// Validate checks the open draft without submitting it.
func (c *Creator) Validate() error {
	d, ok := c.Draft()
	if !ok {
		return apperr.ErrNoDraft
	}
	return ValidateDraft(d)
}

// Cancel discards the draft.
func (c *Creator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = nil
	c.lastErr = nil
}

// Submitting reports whether a create request is outstanding. Submission is
// refused while it is.
func (c *Creator) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// LastError returns the error of the most recent failed Submit.
func (c *Creator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Submit validates the draft locally and, if valid, creates the note. On
// success the list cache is invalidated and the draft is cleared. On failure
// the draft stays open for another attempt.
func (c *Creator) Submit(ctx context.Context) (models.Note, error) {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return models.Note{}, apperr.ErrNoDraft
	}
	if c.submitting {
		c.mu.Unlock()
		return models.Note{}, apperr.ErrSubmitting
	}
	d := *c.draft
	if err := ValidateDraft(d); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		return models.Note{}, err
	}
	c.submitting = true
	c.mu.Unlock()

	note, err := c.api.CreateNote(ctx, d.Payload())

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.opts.logger.Warn("create note failed", slog.String("title", d.Title), slog.String("error", err.Error()))
		return models.Note{}, err
	}
	c.draft = nil
	c.lastErr = nil
	c.mu.Unlock()

	c.inv.Invalidate(models.NotesKeyPrefix)
	c.opts.logger.Info("note created", slog.String("id", note.ID), slog.String("tag", note.Tag.String()))
	if c.opts.notify != nil {
		c.opts.notify(Event{Kind: EventCreated, Note: note})
	}
	return note, nil
}

// Create runs a one-shot creation: open, fill, submit.
func (c *Creator) Create(ctx context.Context, d models.FormDraft) (models.Note, error) {
	c.Open()
	if err := c.SetDraft(d); err != nil {
		return models.Note{}, err
	}
	return c.Submit(ctx)
}
