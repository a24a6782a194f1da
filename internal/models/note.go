// Package models defines the domain types for NoteHub.
package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Tag is the closed category label attached to every note.
type Tag string

// Known tags.
const (
	TagTodo     Tag = "Todo"
	TagWork     Tag = "Work"
	TagPersonal Tag = "Personal"
	TagMeeting  Tag = "Meeting"
	TagShopping Tag = "Shopping"
)

// Tags lists every valid tag in display order.
var Tags = []Tag{TagTodo, TagWork, TagPersonal, TagMeeting, TagShopping}

// Valid reports whether t belongs to the tag set.
func (t Tag) Valid() bool {
	for _, known := range Tags {
		if t == known {
			return true
		}
	}
	return false
}

func (t Tag) String() string { return string(t) }

// ParseTag converts s to a Tag. Matching is exact.
func ParseTag(s string) (Tag, error) {
	t := Tag(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tag %q", s)
	}
	return t, nil
}

// SortBy selects the list ordering.
type SortBy string

// Sort orders accepted by the remote service.
const (
	SortCreated SortBy = "created"
	SortUpdated SortBy = "updated"
)

// Valid reports whether s is a known sort order.
func (s SortBy) Valid() bool {
	return s == SortCreated || s == SortUpdated
}

// ParseSortBy converts s to a SortBy. Empty input yields SortCreated.
func ParseSortBy(s string) (SortBy, error) {
	if s == "" {
		return SortCreated, nil
	}
	v := SortBy(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown sort order %q", s)
	}
	return v, nil
}

// Note is a remote note as returned by the NoteHub API.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tag       Tag       `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Default query values.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
)

// NotesKeyPrefix is the cache key prefix shared by every note-list query.
const NotesKeyPrefix = "notes"

// QueryParams identifies one page/filter/sort view of the note list.
type QueryParams struct {
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Search  string `json:"search,omitempty"`
	Tag     Tag    `json:"tag,omitempty"`
	SortBy  SortBy `json:"sortBy"`
}

// Normalize returns a copy with defaults applied and the search term trimmed.
func (p QueryParams) Normalize() QueryParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.SortBy == "" {
		p.SortBy = SortCreated
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Values encodes the normalized params as a query string. Empty search and
// unset tag are omitted.
func (p QueryParams) Values() url.Values {
	p = p.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("perPage", strconv.Itoa(p.PerPage))
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Tag != "" {
		v.Set("tag", string(p.Tag))
	}
	v.Set("sortBy", string(p.SortBy))
	return v
}

// Key derives the cache key. Params that normalize equal share a key.
func (p QueryParams) Key() string {
	return NotesKeyPrefix + "?" + p.Values().Encode()
}

// PagedResult is one page of the note list.
type PagedResult struct {
	Notes      []Note `json:"notes"`
	TotalPages int    `json:"totalPages"`
}

// Contains reports whether a note with id is on the page.
func (r PagedResult) Contains(id string) bool {
	for _, n := range r.Notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// FormDraft holds the in-progress values of the creation form.
type FormDraft struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
	Tag     Tag    `json:"tag" yaml:"tag"`
}

// NewFormDraft returns an empty draft with the default tag.
func NewFormDraft() FormDraft {
	return FormDraft{Tag: TagTodo}
}

// Payload returns the submission body with title and content trimmed.
func (d FormDraft) Payload() FormDraft {
	return FormDraft{
		Title:   strings.TrimSpace(d.Title),
		Content: strings.TrimSpace(d.Content),
		Tag:     d.Tag,
	}
}
