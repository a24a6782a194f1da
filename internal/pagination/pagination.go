// Package pagination tracks the current page of the note list.
package pagination

// State holds the current page and, once a result has arrived, the total
// page count. The zero value is not ready; use New.
type State struct {
	page       int
	totalPages int
	known      bool
}

// New returns a state on page 1 with the total page count unknown.
func New() *State {
	return &State{page: 1}
}

// Page returns the current page.
func (s *State) Page() int { return s.page }

// TotalPages returns the last known total page count, or 0 when unknown.
func (s *State) TotalPages() int { return s.totalPages }

// Known reports whether a total page count has been recorded.
func (s *State) Known() bool { return s.known }

// SetPage moves to page n. It is rejected when n is outside [1, totalPages],
// and, before the total is known, when n is not 1.
func (s *State) SetPage(n int) bool {
	if n < 1 || n > s.upper() {
		return false
	}
	s.page = n
	return true
}

// SetTotalPages records the total from a fetched result and clamps the
// current page into range.
func (s *State) SetTotalPages(n int) {
	if n < 0 {
		n = 0
	}
	s.totalPages = n
	s.known = true
	if s.page > s.upper() {
		s.page = s.upper()
	}
}

// Reset returns to page 1 and forgets the total, since the result set changed.
func (s *State) Reset() {
	s.page = 1
	s.totalPages = 0
	s.known = false
}

// Visible reports whether a paginator should be shown. A single page has
// nothing to paginate.
func (s *State) Visible() bool {
	return s.totalPages > 1
}

// HasNext reports whether a following page exists.
func (s *State) HasNext() bool { return s.page < s.totalPages }

// HasPrev reports whether a preceding page exists.
func (s *State) HasPrev() bool { return s.page > 1 }

// Next advances one page if possible.
func (s *State) Next() bool { return s.SetPage(s.page + 1) }

// Prev steps back one page if possible.
func (s *State) Prev() bool { return s.SetPage(s.page - 1) }

// upper is the highest acceptable page. An empty result still has page 1.
func (s *State) upper() int {
	if s.totalPages < 1 {
		return 1
	}
	return s.totalPages
}
