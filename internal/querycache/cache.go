// Package querycache caches note-list pages keyed by their query parameters.
//
// Concurrency model: a single mutex guards the entry table. Fetches run in
// their own goroutines and are deduplicated per key through singleflight, so
// concurrent readers of one key share a single upstream call. Every fetch is
// stamped with a sequence number when it starts; a result is stored only if
// no newer fetch for the same key has already stored one.
package querycache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// Fetcher loads one page of notes from the remote service.
type Fetcher interface {
	ListNotes(ctx context.Context, params models.QueryParams) (models.PagedResult, error)
}

// EventKind names a cache event.
type EventKind string

// Cache events.
const (
	EventFetched     EventKind = "fetched"
	EventFailed      EventKind = "failed"
	EventInvalidated EventKind = "invalidated"
)

// Event describes a change to the cache. For EventInvalidated, Key holds the
// prefix that was invalidated and Count the number of entries affected.
type Event struct {
	Kind   EventKind
	Key    string
	Params models.QueryParams
	Result *models.PagedResult
	Err    error
	Count  int
}

// Snapshot is the cached state of a single key at the time of a read.
// Data is shared with the cache and must be treated as read-only.
type Snapshot struct {
	Key       string
	Data      *models.PagedResult
	Err       error
	Fresh     bool
	Fetching  bool
	FetchedAt time.Time
}

type entry struct {
	data       *models.PagedResult
	err        error
	fetchedAt  time.Time
	stale      bool
	failed     bool
	storedSeq  uint64
	invalidSeq uint64
}

// Option is a functional option for the cache.
type Option func(*Cache)

// WithStaleTime sets how long a fetched page counts as fresh.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithRetry makes a failed fetch retry up to n more times, waiting delay
// (doubled on every attempt) in between.
func WithRetry(n int, delay time.Duration) Option {
	return func(c *Cache) {
		c.retry = n
		c.retryDelay = delay
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache maps QueryParams keys to fetched pages.
type Cache struct {
	fetcher    Fetcher
	group      singleflight.Group
	staleTime  time.Duration
	retry      int
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]int
	seq      uint64
	subs     map[int]func(Event)
	nextSub  int
	closed   bool
}

// New creates a cache in front of f.
func New(f Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher:    f,
		staleTime:  30 * time.Second,
		retryDelay: time.Second,
		logger:     slog.Default(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[string]*entry),
		inflight:   make(map[string]int),
		subs:       make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached state for params without blocking. When the entry
// is missing or no longer fresh it schedules a background fetch (joining one
// already in flight) and returns whatever is cached meanwhile.
//
// A key whose last fetch failed is not refetched by Get until Retry,
// Invalidate or Fetch is called for it; failures are never retried behind
// the caller's back.
func (c *Cache) Get(params models.QueryParams) Snapshot {
	params = params.Normalize()
	key := params.Key()

	c.mu.Lock()
	snap := c.snapshotLocked(key)
	failed := false
	if e, ok := c.entries[key]; ok {
		failed = e.failed
	}
	closed := c.closed
	c.mu.Unlock()

	if !snap.Fresh && !failed && !closed {
		c.group.DoChan(key, c.fetchFunc(key, params))
		snap.Fetching = true
	}
	return snap
}

// Peek returns the cached state for params without triggering a fetch.
func (c *Cache) Peek(params models.QueryParams) Snapshot {
	key := params.Normalize().Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(key)
}

// Fetch returns a fresh page for params, waiting for the upstream call when
// needed. Concurrent callers share one call. If ctx ends first the call keeps
// running and its result still lands in the cache.
func (c *Cache) Fetch(ctx context.Context, params models.QueryParams) (models.PagedResult, error) {
	params = params.Normalize()
	key := params.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.PagedResult{}, apperr.ErrClosed
	}
	snap := c.snapshotLocked(key)
	c.mu.Unlock()
	if snap.Fresh {
		return *snap.Data, nil
	}

	ch := c.group.DoChan(key, c.fetchFunc(key, params))
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.PagedResult{}, res.Err
		}
		return res.Val.(models.PagedResult), nil
	case <-ctx.Done():
		return models.PagedResult{}, ctx.Err()
	}
}

// Retry clears the failure marker of params so the next Get refetches. It
// reports whether the key had failed.
func (c *Cache) Retry(params models.QueryParams) bool {
	key := params.Normalize().Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.failed {
		return false
	}
	e.failed = false
	return true
}

// Invalidate marks every entry whose key starts with prefix as stale and
// detaches in-flight fetches for those keys, so the next access refetches.
// A detached fetch still stores its result, but as stale.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	n := 0
	for key, e := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		e.stale = true
		e.failed = false
		e.invalidSeq = c.seq
		n++
		if c.inflight[key] > 0 {
			c.group.Forget(key)
		}
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	c.logger.Debug("querycache: invalidated", slog.String("prefix", prefix), slog.Int("entries", n))
	notify(subs, Event{Kind: EventInvalidated, Key: prefix, Count: n})
	return n
}

// Subscribe registers fn for cache events and returns a function that
// removes it. fn runs on the goroutine that produced the event and must not
// block.
func (c *Cache) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels outstanding background fetches and stops notifications.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[int]func(Event))
	c.mu.Unlock()
	c.cancel()
}

func (c *Cache) snapshotLocked(key string) Snapshot {
	snap := Snapshot{Key: key, Fetching: c.inflight[key] > 0}
	e, ok := c.entries[key]
	if !ok {
		return snap
	}
	snap.Data = e.data
	snap.Err = e.err
	snap.FetchedAt = e.fetchedAt
	snap.Fresh = e.data != nil && e.err == nil && !e.stale && c.now().Sub(e.fetchedAt) < c.staleTime
	return snap
}

func (c *Cache) fetchFunc(key string, params models.QueryParams) func() (any, error) {
	return func() (any, error) {
		c.mu.Lock()
		c.seq++
		seq := c.seq
		c.inflight[key]++
		if _, ok := c.entries[key]; !ok {
			c.entries[key] = &entry{}
		}
		c.mu.Unlock()

		res, err := c.fetchWithRetry(params)

		c.mu.Lock()
		c.inflight[key]--
		if c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
		e := c.entries[key]
		stored := false
		if seq > e.storedSeq && !c.closed {
			stored = true
			e.storedSeq = seq
			if err != nil {
				e.err = err
				e.failed = true
			} else {
				data := res
				e.data = &data
				e.err = nil
				e.failed = false
				e.fetchedAt = c.now()
				e.stale = seq <= e.invalidSeq
			}
		}
		subs := c.subscribersLocked()
		c.mu.Unlock()

		if !stored {
			c.logger.Debug("querycache: superseded result dropped", slog.String("key", key))
			return res, err
		}
		if err != nil {
			c.logger.Warn("querycache: fetch failed", slog.String("key", key), slog.String("error", err.Error()))
			notify(subs, Event{Kind: EventFailed, Key: key, Params: params, Err: err})
			return res, err
		}
		data := res
		notify(subs, Event{Kind: EventFetched, Key: key, Params: params, Result: &data})
		return res, nil
	}
}

func (c *Cache) fetchWithRetry(params models.QueryParams) (models.PagedResult, error) {
	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		res, err := c.fetcher.ListNotes(c.ctx, params)
		if err == nil || attempt >= c.retry || c.ctx.Err() != nil {
			return res, err
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-c.ctx.Done():
			return res, err
		}
	}
}

func (c *Cache) subscribersLocked() []func(Event) {
	out := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
