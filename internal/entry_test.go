package internal

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/testutil"
)

func testStack(t *testing.T, notify func(noteflow.Event)) (*Stack, *Config, *testutil.Server) {
	t.Helper()
	upstream := testutil.NewServer(t)

	cfg := NewDefaultConfig()
	cfg.API.BaseURL = upstream.BaseURL()
	cfg.API.Token = testutil.TestToken
	cfg.Query.Debounce = 10 * time.Millisecond

	app := &application{}
	for _, opt := range []Option{WithConfig(cfg), WithLogOutput(io.Discard), WithHTTPClient(upstream.Client())} {
		opt(app)
	}
	st, err := NewStack(app, NewLogger(cfg.App.LogLevel, io.Discard), notify)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	return st, cfg, upstream
}

func TestNewStackRequiresConfig(t *testing.T) {
	if _, err := NewStack(&application{}, NewLogger(0, io.Discard), nil); err == nil {
		t.Fatal("expected error without config")
	}
	if _, _, err := Open(); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestNewStackRejectsMissingToken(t *testing.T) {
	cfg := NewDefaultConfig()
	if _, _, err := Open(WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestHTTPHandlerHealthAndNotes(t *testing.T) {
	st, cfg, upstream := testStack(t, nil)
	upstream.Seed(models.TagWork, "quarterly report", "standup")

	h := NewHTTPHandler(cfg, st, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes?search=report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Notes      []models.Note `json:"notes"`
		TotalPages int           `json:"totalPages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Notes) != 1 || page.Notes[0].Title != "quarterly report" {
		t.Errorf("notes = %+v", page.Notes)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("events without broker: status = %d", rec.Code)
	}
}

func TestStackNotifiesMutations(t *testing.T) {
	events := make(chan noteflow.Event, 2)
	st, cfg, _ := testStack(t, func(ev noteflow.Event) { events <- ev })
	h := NewHTTPHandler(cfg, st, nil)

	body := `{"title":"Groceries","content":"eggs","tag":"Shopping"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case ev := <-events:
		if ev.Kind != noteflow.EventCreated || ev.Note.Title != "Groceries" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no create event")
	}
}

func TestStackSessionUsesQueryConfig(t *testing.T) {
	st, _, upstream := testStack(t, nil)
	st.cfg.Query.PerPage = 2
	upstream.Seed(models.TagTodo, "a", "b", "c")

	s := st.NewSession()
	defer s.Close()

	p, err := s.Params()
	if err != nil {
		t.Fatal(err)
	}
	if p.PerPage != 2 || p.SortBy != models.SortCreated || p.Page != 1 {
		t.Errorf("params = %+v", p)
	}
}
