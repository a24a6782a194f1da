package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/notesapi"
	"github.com/starford/notehub/internal/querycache"
	"github.com/starford/notehub/internal/testutil"
)

// testEnv wires a fake upstream, client, cache, flows and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*testutil.Server, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*testutil.Server, http.Handler) {
	t.Helper()

	srv := testutil.NewServer(t)
	client, err := notesapi.New(notesapi.Config{BaseURL: srv.BaseURL(), Token: testutil.TestToken, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("notesapi.New: %v", err)
	}
	cache := querycache.New(client)
	t.Cleanup(cache.Close)

	svc := NewService(cache, noteflow.NewCreator(client, cache), noteflow.NewDeleter(client, cache))
	return srv, NewRouter(svc, AuthConfig{Enabled: authEnabled, Token: authToken}, sseHandler)
}

func do(router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, target, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListNotes(t *testing.T) {
	srv, router := testEnv(t, "")
	srv.Seed(models.TagTodo, "alpha", "beta", "gamma")

	w := do(router, http.MethodGet, "/notes?perPage=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Notes) != 2 || resp.TotalPages != 2 {
		t.Fatalf("notes = %d, totalPages = %d", len(resp.Notes), resp.TotalPages)
	}
	if resp.Page != 1 || resp.PerPage != 2 {
		t.Errorf("page = %d, perPage = %d", resp.Page, resp.PerPage)
	}
	if resp.Notes[0].Title != "gamma" {
		t.Errorf("first = %q, want newest first", resp.Notes[0].Title)
	}

	calls := srv.ListCalls()
	if len(calls) != 1 || calls[0].Get("sortBy") != "created" {
		t.Errorf("upstream calls = %v", calls)
	}
}

func TestListNotes_ETag(t *testing.T) {
	srv, router := testEnv(t, "")
	srv.Seed(models.TagWork, "report")

	w := do(router, http.MethodGet, "/notes", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status = %d, etag = %q", w.Code, etag)
	}

	w = do(router, http.MethodGet, "/notes", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("304 carried a body: %q", w.Body.String())
	}
	if n := srv.ListCount(); n != 1 {
		t.Errorf("upstream list calls = %d, want 1 (served from cache)", n)
	}

	w = do(router, http.MethodGet, "/notes", nil, "If-None-Match", `"stale"`)
	if w.Code != http.StatusOK {
		t.Errorf("mismatched etag = %d, want 200", w.Code)
	}
}

func TestListNotes_InvalidQuery(t *testing.T) {
	_, router := testEnv(t, "")

	cases := map[string]string{
		"/notes?page=abc":     "page",
		"/notes?page=-1":      "page",
		"/notes?perPage=1000": "perPage",
		"/notes?tag=Urgent":   "tag",
		"/notes?sortBy=title": "sortBy",
	}
	for target, field := range cases {
		w := do(router, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
			continue
		}
		var resp errResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Fields[field] == "" {
			t.Errorf("%s: missing field error for %q in %v", target, field, resp.Fields)
		}
	}
}

func TestListNotes_UpstreamFailure(t *testing.T) {
	srv, router := testEnv(t, "")
	srv.FailNext(http.StatusInternalServerError)

	w := do(router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("upstream 500 = %d, want 502", w.Code)
	}
}

func TestCreateNote(t *testing.T) {
	srv, router := testEnv(t, "")

	// Warm the cache so the create has something to invalidate.
	do(router, http.MethodGet, "/notes", nil)

	w := do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: " Standup ", Content: "agenda", Tag: models.TagMeeting})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Standup" || note.ID == "" {
		t.Errorf("created = %+v", note)
	}

	w = do(router, http.MethodGet, "/notes", nil)
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 1 || resp.Notes[0].ID != note.ID {
		t.Errorf("list after create = %+v", resp.Notes)
	}
	if n := srv.ListCount(); n != 2 {
		t.Errorf("upstream list calls = %d, want 2 (refetch after create)", n)
	}
}

func TestCreateNote_Invalid(t *testing.T) {
	srv, router := testEnv(t, "")

	w := do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Hi", Content: "x", Tag: models.TagTodo})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short title = %d, want 422", w.Code)
	}
	var resp errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Fields["title"] != noteflow.MsgTitleTooShort {
		t.Errorf("fields = %v", resp.Fields)
	}
	if n := srv.CreateCount(); n != 0 {
		t.Errorf("upstream create calls = %d, want 0", n)
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader([]byte("{")))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	srv, router := testEnv(t, "")
	seeded := srv.Seed(models.TagTodo, "keep", "drop")

	do(router, http.MethodGet, "/notes", nil)

	w := do(router, http.MethodDelete, "/notes/"+seeded[1].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodGet, "/notes", nil)
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if (models.PagedResult{Notes: resp.Notes}).Contains(seeded[1].ID) {
		t.Error("deleted note still listed")
	}
	if !(models.PagedResult{Notes: resp.Notes}).Contains(seeded[0].ID) {
		t.Error("kept note missing")
	}
}

func TestDeleteNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(router, http.MethodDelete, "/notes/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote_Pending(t *testing.T) {
	srv, router := testEnv(t, "")
	seeded := srv.Seed(models.TagTodo, "slow")
	srv.SetDelay(300 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	var first int
	go func() {
		defer wg.Done()
		first = do(router, http.MethodDelete, "/notes/"+seeded[0].ID, nil).Code
	}()
	time.Sleep(100 * time.Millisecond)

	w := do(router, http.MethodDelete, "/notes/"+seeded[0].ID, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second delete = %d, want 409", w.Code)
	}
	wg.Wait()
	if first != http.StatusOK {
		t.Errorf("first delete = %d, want 200", first)
	}
}

func TestCreateNote_ConcurrentClients(t *testing.T) {
	srv, router := testEnv(t, "")
	srv.SetDelay(200 * time.Millisecond)

	titles := []string{"First client", "Second client"}
	codes := make([]int, len(titles))
	var wg sync.WaitGroup
	for i, title := range titles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: title, Content: "hello", Tag: models.TagWork}).Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated {
			t.Errorf("create %q = %d, want 201", titles[i], code)
		}
	}
	if n := srv.CreateCount(); n != 2 {
		t.Errorf("upstream creates = %d, want 2", n)
	}
}

func TestCreateNote_FailedDraftNotReused(t *testing.T) {
	srv, router := testEnv(t, "")

	srv.FailNext(http.StatusInternalServerError)
	w := do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Lost draft", Content: "a", Tag: models.TagTodo})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failed create = %d, want 502", w.Code)
	}

	w = do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Fresh draft", Content: "b", Tag: models.TagWork})
	if w.Code != http.StatusCreated {
		t.Fatalf("second create = %d, want 201", w.Code)
	}
	notes := srv.Notes()
	if len(notes) != 1 || notes[0].Title != "Fresh draft" {
		t.Errorf("stored = %+v", notes)
	}
}

func TestTagsAndRefresh(t *testing.T) {
	srv, router := testEnv(t, "")

	w := do(router, http.MethodGet, "/tags", nil)
	var tags TagsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tags)
	if len(tags.Tags) != len(models.Tags) {
		t.Errorf("tags = %v", tags.Tags)
	}

	do(router, http.MethodGet, "/notes", nil)
	w = do(router, http.MethodPost, "/refresh", nil)
	var rr RefreshResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rr)
	if rr.Invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", rr.Invalidated)
	}
	do(router, http.MethodGet, "/notes", nil)
	if n := srv.ListCount(); n != 2 {
		t.Errorf("upstream list calls = %d, want 2", n)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodPost, "/notes", CreateNoteRequest{Title: "Authed", Content: "ok", Tag: models.TagWork},
		"Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="notehub"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_SchemeCaseInsensitive(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(router, http.MethodGet, "/notes", nil, "Authorization", "bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("lowercase scheme = %d, want 200", w.Code)
	}
	w = do(router, http.MethodGet, "/notes", nil, "Authorization", "Basic secret123")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("basic scheme = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_EnabledWithoutTokenDeniesAll(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "", nil)

	w := do(router, http.MethodGet, "/notes", nil, "Authorization", "Bearer ")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("empty token = %d, want 401", w.Code)
	}
}

func TestTokenMatches(t *testing.T) {
	cases := []struct {
		got, want string
		ok        bool
	}{
		{"secret123", "secret123", true},
		{"secret124", "secret123", false},
		{"secret12", "secret123", false},
		{"secret1234", "secret123", false},
		{"", "secret123", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := tokenMatches(c.got, c.want); got != c.ok {
			t.Errorf("tokenMatches(%q, %q) = %v, want %v", c.got, c.want, got, c.ok)
		}
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context ends.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestETagMatches(t *testing.T) {
	etag := `"abc"`
	for header, want := range map[string]bool{
		`"abc"`:      true,
		`W/"abc"`:    true,
		`"x", "abc"`: true,
		`*`:          true,
		`"abd"`:      false,
		``:           false,
	} {
		if got := etagMatches(header, etag); got != want {
			t.Errorf("etagMatches(%q) = %v, want %v", header, got, want)
		}
	}
}
