package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/debounce"
	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/notesapi"
	"github.com/starford/notehub/internal/querycache"
	"github.com/starford/notehub/internal/testutil"
)

func newSession(t *testing.T, delay time.Duration) (*Session, *testutil.Server) {
	t.Helper()
	srv := testutil.NewServer(t)
	client, err := notesapi.New(notesapi.Config{BaseURL: srv.BaseURL(), Token: testutil.TestToken, Timeout: 2 * time.Second})
	require.NoError(t, err)
	cache := querycache.New(client)
	s := New(client, cache, Config{PerPage: models.DefaultPerPage, SortBy: models.SortCreated, Debounce: delay})
	t.Cleanup(func() {
		s.Close()
		cache.Close()
	})
	return s, srv
}

func titles(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %02d", prefix, i+1)
	}
	return out
}

// waitView polls View until cond holds.
func waitView(t *testing.T, s *Session, cond func(View) bool, msg string) View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		v, err := s.View()
		require.NoError(t, err)
		if cond(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
	return View{}
}

func loaded(v View) bool { return !v.Loading && !v.Fetching && !v.Placeholder && v.Err == nil }

func TestTypingBurstIssuesOneRequest(t *testing.T) {
	s, srv := newSession(t, debounce.DefaultDelay)
	srv.Seed(models.TagMeeting, "meeting notes", "meet the team", "lunch")

	require.NoError(t, s.Type("meet"))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Type("meeting"))

	p, err := s.Params()
	require.NoError(t, err)
	assert.Empty(t, p.Search, "search commits only after the quiet period")
	assert.True(t, s.SearchPending())

	deadline := time.Now().Add(2 * time.Second)
	for p.Search == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		p, err = s.Params()
		require.NoError(t, err)
	}
	require.Equal(t, "meeting", p.Search)
	assert.Equal(t, 1, p.Page)

	v := waitView(t, s, loaded, "search results never loaded")
	assert.Equal(t, "meeting", v.SearchInput)
	require.Len(t, v.Notes, 1)
	assert.Equal(t, "meeting notes", v.Notes[0].Title)

	calls := srv.ListCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "meeting", calls[0].Get("search"))
	assert.Equal(t, "1", calls[0].Get("page"))
}

func TestConcurrentTypingCommitsDisplayedInput(t *testing.T) {
	s, _ := newSession(t, 30*time.Millisecond)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Type(fmt.Sprintf("q%d-%d", round, i)))
			}()
		}
		wg.Wait()
		s.FlushSearch()

		require.Eventually(t, func() bool {
			v, err := s.View()
			return err == nil && v.Search == v.SearchInput
		}, 2*time.Second, 5*time.Millisecond, "round %d: committed search differs from the input box", round)
	}
}

func TestSearchCommitResetsPage(t *testing.T) {
	s, srv := newSession(t, 20*time.Millisecond)
	srv.Seed(models.TagTodo, titles("note", 25)...)

	v := waitView(t, s, loaded, "first page never loaded")
	assert.Equal(t, 3, v.TotalPages)
	assert.True(t, v.ShowPagination)

	ok, err := s.SetPage(3)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Type("  note 2 "))
	require.True(t, s.FlushSearch())

	p, err := s.Params()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, "note 2", p.Search)
}

func TestSetPageOutOfRange(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.Seed(models.TagWork, titles("w", 3)...)

	v := waitView(t, s, loaded, "page never loaded")
	assert.Equal(t, 1, v.TotalPages)
	assert.False(t, v.ShowPagination, "paginator hidden for a single page")

	ok, err := s.SetPage(2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.SetPage(0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreviousPageShownWhileLoading(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.Seed(models.TagTodo, titles("note", 15)...)

	first := waitView(t, s, loaded, "first page never loaded")
	require.Len(t, first.Notes, 10)

	release := srv.Hold()
	defer release()
	ok, err := s.NextPage()
	require.NoError(t, err)
	require.True(t, ok)

	v, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, 2, v.Page)
	assert.True(t, v.Placeholder)
	assert.True(t, v.Fetching)
	assert.Equal(t, first.Notes, v.Notes)

	release()
	v = waitView(t, s, loaded, "second page never loaded")
	assert.Len(t, v.Notes, 5)
	assert.Equal(t, 2, v.Page)
}

func TestFilterChangeResetsPage(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.Seed(models.TagTodo, titles("todo", 12)...)
	srv.Seed(models.TagWork, "report")

	waitView(t, s, loaded, "first page never loaded")
	ok, err := s.SetPage(2)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SetTag(models.TagWork))
	v := waitView(t, s, loaded, "filtered page never loaded")
	assert.Equal(t, 1, v.Page)
	require.Len(t, v.Notes, 1)
	assert.Equal(t, "report", v.Notes[0].Title)

	assert.ErrorIs(t, s.SetTag("Urgent"), apperr.ErrValidation)
	assert.ErrorIs(t, s.SetSort("title"), apperr.ErrValidation)
	require.NoError(t, s.SetSort(models.SortUpdated))
}

func TestErrorReplacesListUntilRefresh(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.Seed(models.TagTodo, "one")
	srv.FailNext(http.StatusInternalServerError)

	v := waitView(t, s, func(v View) bool { return v.Err != nil }, "error never surfaced")
	assert.ErrorIs(t, v.Err, apperr.ErrServer)
	assert.Empty(t, v.Notes)
	assert.False(t, v.ShowPagination)

	// Reading again must not retry on its own.
	_, err := s.View()
	require.NoError(t, err)
	assert.Equal(t, 0, srv.ListCount())

	require.NoError(t, s.Refresh())
	v = waitView(t, s, loaded, "refresh never recovered")
	require.Len(t, v.Notes, 1)
}

func TestDismissError(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.FailNext(http.StatusBadGateway)

	waitView(t, s, func(v View) bool { return v.Err != nil }, "error never surfaced")
	require.NoError(t, s.DismissError())
	v, err := s.View()
	require.NoError(t, err)
	assert.NoError(t, v.Err)
}

func TestMutationsRefreshView(t *testing.T) {
	s, srv := newSession(t, 0)
	seeded := srv.Seed(models.TagTodo, "old")
	waitView(t, s, loaded, "first page never loaded")

	note, err := s.Creator().Create(context.Background(), models.FormDraft{Title: "fresh", Content: "body", Tag: models.TagPersonal})
	require.NoError(t, err)
	waitView(t, s, func(v View) bool {
		return loaded(v) && models.PagedResult{Notes: v.Notes}.Contains(note.ID)
	}, "created note never listed")

	_, err = s.Deleter().Delete(context.Background(), seeded[0].ID)
	require.NoError(t, err)
	waitView(t, s, func(v View) bool {
		return loaded(v) && !models.PagedResult{Notes: v.Notes}.Contains(seeded[0].ID)
	}, "deleted note still listed")
}

func TestChangesSignalled(t *testing.T) {
	s, srv := newSession(t, 0)
	srv.Seed(models.TagTodo, "one")

	_, err := s.View()
	require.NoError(t, err)
	select {
	case <-s.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after fetch")
	}
}

func TestClosedSession(t *testing.T) {
	s, _ := newSession(t, 0)
	s.Close()
	s.Close()

	assert.ErrorIs(t, s.Type("x"), apperr.ErrClosed)
	_, err := s.View()
	assert.ErrorIs(t, err, apperr.ErrClosed)
	_, err = s.SetPage(1)
	assert.ErrorIs(t, err, apperr.ErrClosed)
	assert.ErrorIs(t, s.Refresh(), apperr.ErrClosed)
}
