// Package session holds the note-list view state: the raw and committed
// search term, filters, pagination and the result currently on screen.
package session

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/debounce"
	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/notesapi"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/pagination"
	"github.com/starford/notehub/internal/querycache"
)

// Config holds the initial query settings.
type Config struct {
	PerPage  int
	SortBy   models.SortBy
	Tag      models.Tag
	Debounce time.Duration
}

// View is what a list screen renders.
type View struct {
	Notes       []models.Note
	TotalPages  int
	Page        int
	Search      string
	SearchInput string
	Tag         models.Tag
	SortBy      models.SortBy

	// Loading is set when nothing can be shown yet.
	Loading bool
	// Fetching is set while a request for the current query is outstanding.
	Fetching bool
	// Placeholder is set when Notes belong to the previous query and are
	// shown until the current one arrives.
	Placeholder bool
	// Err replaces the list when the current query failed.
	Err error

	ShowPagination bool
}

// Option is a functional option for the session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithFlowOptions forwards options to the creation and deletion flows.
func WithFlowOptions(opts ...noteflow.Option) Option {
	return func(s *Session) {
		s.flowOpts = append(s.flowOpts, opts...)
	}
}

type state struct {
	searchInput string
	search      string
	tag         models.Tag
	sortBy      models.SortBy
	perPage     int
	pager       *pagination.State
	shown       *models.PagedResult
	dismissed   error
}

func (st *state) params() models.QueryParams {
	return models.QueryParams{
		Page:    st.pager.Page(),
		PerPage: st.perPage,
		Search:  st.search,
		Tag:     st.tag,
		SortBy:  st.sortBy,
	}.Normalize()
}

// Session is the single source of truth for the list view.
//
// Concurrency model: one goroutine owns the state; public methods hand it
// closures over a channel, as a UI event loop would. Cache notifications
// never enter the loop; they only nudge Changes.
type Session struct {
	cache     *querycache.Cache
	creator   *noteflow.Creator
	deleter   *noteflow.Deleter
	debouncer *debounce.Debouncer[string]
	logger    *slog.Logger
	flowOpts  []noteflow.Option

	activeKey atomic.Value
	changes   chan struct{}
	unsub     func()

	ops     chan func(*state)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a session over api and cache and starts its loop.
func New(api notesapi.Notes, cache *querycache.Cache, cfg Config, opts ...Option) *Session {
	s := &Session{
		cache:   cache,
		logger:  slog.Default(),
		changes: make(chan struct{}, 1),
		ops:     make(chan func(*state)),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.creator = noteflow.NewCreator(api, cache, s.flowOpts...)
	s.deleter = noteflow.NewDeleter(api, cache, s.flowOpts...)
	s.debouncer = debounce.New(cfg.Debounce, s.commitSearch)

	st := &state{
		tag:     cfg.Tag,
		sortBy:  cfg.SortBy,
		perPage: cfg.PerPage,
		pager:   pagination.New(),
	}
	s.activeKey.Store(st.params().Key())
	s.unsub = cache.Subscribe(s.onCacheEvent)

	go s.run(st)
	return s
}

func (s *Session) run(st *state) {
	defer close(s.stopped)
	for {
		select {
		case <-s.stopCh:
			return
		case op := <-s.ops:
			op(st)
		}
	}
}

// Close stops the loop. Results that arrive afterwards only reach the cache.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		<-s.stopped
		return
	}
	s.debouncer.Stop()
	s.unsub()
	close(s.stopCh)
	<-s.stopped
}

// Changes signals, coalesced, that the view may have changed.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Creator returns the creation flow bound to this session's cache.
func (s *Session) Creator() *noteflow.Creator { return s.creator }

// Deleter returns the deletion flow bound to this session's cache.
func (s *Session) Deleter() *noteflow.Deleter { return s.deleter }

// Type records a keystroke in the search box. The committed search term
// follows once input has been quiet for the debounce window.
//
// The debouncer is fed on the loop so that the displayed input and the value
// that eventually commits follow the same order across callers.
func (s *Session) Type(input string) error {
	return s.do(func(st *state) {
		st.searchInput = input
		s.debouncer.Call(input)
	})
}

// FlushSearch commits pending search input immediately.
func (s *Session) FlushSearch() bool {
	return s.debouncer.Flush()
}

// SearchPending reports whether typed input is waiting to commit.
func (s *Session) SearchPending() bool {
	return s.debouncer.Pending()
}

// SetPage moves to page n. Pages outside [1, totalPages] are rejected.
func (s *Session) SetPage(n int) (bool, error) {
	var ok bool
	err := s.do(func(st *state) {
		ok = st.pager.SetPage(n)
		if ok {
			s.activate(st)
		}
	})
	return ok, err
}

// NextPage advances one page if possible.
func (s *Session) NextPage() (bool, error) {
	var ok bool
	err := s.do(func(st *state) {
		ok = st.pager.Next()
		if ok {
			s.activate(st)
		}
	})
	return ok, err
}

// PrevPage steps back one page if possible.
func (s *Session) PrevPage() (bool, error) {
	var ok bool
	err := s.do(func(st *state) {
		ok = st.pager.Prev()
		if ok {
			s.activate(st)
		}
	})
	return ok, err
}

// SetTag filters by tag; the empty tag clears the filter. A change resets
// the page to 1.
func (s *Session) SetTag(tag models.Tag) error {
	if tag != "" && !tag.Valid() {
		return &apperr.ValidationError{Fields: map[string]string{"tag": "Tag is invalid"}}
	}
	return s.do(func(st *state) {
		if st.tag == tag {
			return
		}
		st.tag = tag
		st.pager.Reset()
		s.activate(st)
	})
}

// SetSort changes the ordering. A change resets the page to 1.
func (s *Session) SetSort(sortBy models.SortBy) error {
	if !sortBy.Valid() {
		return &apperr.ValidationError{Fields: map[string]string{"sortBy": "Sort order is invalid"}}
	}
	return s.do(func(st *state) {
		if st.sortBy == sortBy {
			return
		}
		st.sortBy = sortBy
		st.pager.Reset()
		s.activate(st)
	})
}

// Refresh marks every list page stale so the current one is refetched. It
// is how a user re-triggers a failed query.
func (s *Session) Refresh() error {
	if s.closed.Load() {
		return apperr.ErrClosed
	}
	s.cache.Invalidate(models.NotesKeyPrefix)
	return nil
}

// DismissError hides the current query error until a different one occurs.
func (s *Session) DismissError() error {
	return s.do(func(st *state) {
		st.dismissed = s.cache.Peek(st.params()).Err
	})
}

// Params returns the query the view currently shows.
func (s *Session) Params() (models.QueryParams, error) {
	var p models.QueryParams
	err := s.do(func(st *state) { p = st.params() })
	return p, err
}

// View reads the current query through the cache, scheduling a fetch when
// the cached page is missing or stale.
func (s *Session) View() (View, error) {
	var v View
	err := s.do(func(st *state) { v = s.buildView(st) })
	return v, err
}

func (s *Session) buildView(st *state) View {
	params := st.params()
	snap := s.cache.Get(params)

	// A result can shrink the page count below the current page; clamp and
	// read again for the clamped page.
	if snap.Data != nil {
		before := st.pager.Page()
		st.pager.SetTotalPages(snap.Data.TotalPages)
		if st.pager.Page() != before {
			params = st.params()
			s.activeKey.Store(params.Key())
			snap = s.cache.Get(params)
		}
	}

	v := View{
		Page:        params.Page,
		Search:      st.search,
		SearchInput: st.searchInput,
		Tag:         st.tag,
		SortBy:      params.SortBy,
		Fetching:    snap.Fetching,
	}

	switch {
	case snap.Data != nil && snap.Err == nil:
		st.shown = snap.Data
		st.dismissed = nil
		v.Notes = snap.Data.Notes
	case snap.Err != nil && !snap.Fetching:
		if snap.Err != st.dismissed {
			v.Err = snap.Err
		} else if snap.Data != nil {
			v.Notes = snap.Data.Notes
		}
	case snap.Data != nil:
		v.Notes = snap.Data.Notes
	case st.shown != nil:
		v.Notes = st.shown.Notes
		v.Placeholder = true
	default:
		v.Loading = snap.Fetching
	}

	v.TotalPages = st.pager.TotalPages()
	v.ShowPagination = st.pager.Visible() && v.Err == nil
	return v
}

// activate records the current key as active and starts loading it.
func (s *Session) activate(st *state) {
	params := st.params()
	s.activeKey.Store(params.Key())
	s.cache.Retry(params)
	s.cache.Get(params)
	s.signal()
}

func (s *Session) commitSearch(raw string) {
	s.post(func(st *state) {
		st.search = strings.TrimSpace(raw)
		st.pager.Reset()
		s.logger.Debug("session: search committed", slog.String("search", st.search))
		s.activate(st)
	})
}

func (s *Session) onCacheEvent(ev querycache.Event) {
	if s.closed.Load() {
		return
	}
	if ev.Kind == querycache.EventInvalidated || ev.Key == s.activeKey.Load() {
		s.signal()
	}
}

func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func(*state)) error {
	if s.closed.Load() {
		return apperr.ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ops <- func(st *state) { fn(st); close(done) }:
	case <-s.stopped:
		return apperr.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return apperr.ErrClosed
	}
}

// post runs fn on the loop without waiting.
func (s *Session) post(fn func(*state)) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ops <- fn:
	case <-s.stopped:
	}
}
