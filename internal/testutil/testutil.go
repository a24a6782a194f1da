// Package testutil provides an in-memory fake of the remote NoteHub API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/notehub/internal/models"
)

// TestToken is the bearer token the fake server accepts.
const TestToken = "test-token"

// Server is a fake NoteHub service. It is safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	notes    []models.Note
	lists    []url.Values
	creates  int
	deletes  int
	delay    time.Duration
	failNext int
	gate     chan struct{}
	clock    time.Time
}

// NewServer starts a fake server and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Get("/notes", s.list)
	r.Post("/notes", s.create)
	r.Delete("/notes/{id}", s.remove)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// BaseURL returns the root URL clients should target.
func (s *Server) BaseURL() string { return s.Server.URL }

// Seed adds notes with the given titles and tag, oldest first.
func (s *Server) Seed(tag models.Tag, titles ...string) []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, 0, len(titles))
	for _, title := range titles {
		n := s.newNoteLocked(models.FormDraft{Title: title, Content: title + " content", Tag: tag})
		out = append(out, n)
	}
	return out
}

// SetDelay makes every request wait d before being handled.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Hold blocks list requests until the returned release func is called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next request answer with status.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	s.failNext = status
	s.mu.Unlock()
}

// ListCalls returns the query strings of every list request received.
func (s *Server) ListCalls() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.Values, len(s.lists))
	copy(out, s.lists)
	return out
}

// ListCount returns how many list requests were received.
func (s *Server) ListCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists)
}

// CreateCount returns how many create requests were received.
func (s *Server) CreateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// DeleteCount returns how many delete requests were received.
func (s *Server) DeleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Notes returns a copy of the stored notes.
func (s *Server) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or missing token"})
			return
		}
		s.mu.Lock()
		delay := s.delay
		status := s.failNext
		s.failNext = 0
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	s.lists = append(s.lists, q)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	if perPage < 1 {
		perPage = models.DefaultPerPage
	}
	search := strings.ToLower(q.Get("search"))
	tag := q.Get("tag")
	sortBy := q.Get("sortBy")

	s.mu.Lock()
	var matched []models.Note
	for _, n := range s.notes {
		if tag != "" && string(n.Tag) != tag {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Content), search) {
			continue
		}
		matched = append(matched, n)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if sortBy == string(models.SortUpdated) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	totalPages := (len(matched) + perPage - 1) / perPage
	start := (page - 1) * perPage
	notes := []models.Note{}
	if start < len(matched) {
		end := min(start+perPage, len(matched))
		notes = matched[start:end]
	}
	writeJSON(w, http.StatusOK, models.PagedResult{Notes: notes, TotalPages: totalPages})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var d models.FormDraft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid JSON body"})
		return
	}
	if len(d.Title) < 3 || !d.Tag.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "title and tag are invalid"})
		return
	}
	s.mu.Lock()
	s.creates++
	n := s.newNoteLocked(d)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for i, n := range s.notes {
		if n.ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Note not found"})
}

func (s *Server) newNoteLocked(d models.FormDraft) models.Note {
	s.clock = s.clock.Add(time.Minute)
	n := models.Note{
		ID:        uuid.NewString(),
		Title:     d.Title,
		Content:   d.Content,
		Tag:       d.Tag,
		CreatedAt: s.clock,
		UpdatedAt: s.clock,
	}
	s.notes = append(s.notes, n)
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
