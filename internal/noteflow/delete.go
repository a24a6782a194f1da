package noteflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// Deleter removes notes on request, without confirmation. The note stays in
// the cached list until the server confirms; only then is the cache
// invalidated.
type Deleter struct {
	api  NoteDeleter
	inv  Invalidator
	opts options

	mu      sync.Mutex
	pending map[string]struct{}
	lastErr error
}

// NewDeleter returns a deletion flow that invalidates inv on success.
func NewDeleter(api NoteDeleter, inv Invalidator, opts ...Option) *Deleter {
	return &Deleter{
		api:     api,
		inv:     inv,
		opts:    buildOptions(opts),
		pending: make(map[string]struct{}),
	}
}

// Pending reports whether a delete for id is outstanding. The delete control
// for that note is disabled while it is.
func (d *Deleter) Pending(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[id]
	return ok
}

// LastError returns the error of the most recent failed Delete.
func (d *Deleter) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Delete removes the note with id and returns it.
func (d *Deleter) Delete(ctx context.Context, id string) (models.Note, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Note{}, &apperr.ValidationError{Fields: map[string]string{"id": "Id is required"}}
	}

	d.mu.Lock()
	if _, busy := d.pending[id]; busy {
		d.mu.Unlock()
		return models.Note{}, apperr.ErrDeletePending
	}
	d.pending[id] = struct{}{}
	d.mu.Unlock()

	note, err := d.api.DeleteNote(ctx, id)

	d.mu.Lock()
	delete(d.pending, id)
	if err != nil {
		d.lastErr = err
	} else {
		d.lastErr = nil
	}
	d.mu.Unlock()

	if err != nil {
		d.opts.logger.Warn("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
		return models.Note{}, err
	}

	d.inv.Invalidate(models.NotesKeyPrefix)
	d.opts.logger.Info("note deleted", slog.String("id", id))
	if d.opts.notify != nil {
		if note.ID == "" {
			note.ID = id
		}
		d.opts.notify(Event{Kind: EventDeleted, Note: note})
	}
	return note, nil
}
