package api

import (
	"github.com/starford/notehub/internal/models"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string     `json:"title" example:"Standup" validate:"required"`
	Content string     `json:"content" example:"Agenda for Monday" validate:"required"`
	Tag     models.Tag `json:"tag" example:"Meeting" validate:"required"`
}

// Draft converts the request into a form draft.
func (r CreateNoteRequest) Draft() models.FormDraft {
	return models.FormDraft{Title: r.Title, Content: r.Content, Tag: r.Tag}
}

// NoteListResponse is one page of notes.
type NoteListResponse struct {
	Notes      []models.Note `json:"notes" validate:"required"`
	TotalPages int           `json:"totalPages" example:"3" validate:"required"`
	Page       int           `json:"page" example:"1" validate:"required"`
	PerPage    int           `json:"perPage" example:"10" validate:"required"`
}

// TagsResponse lists the tags a note may carry.
type TagsResponse struct {
	Tags []models.Tag `json:"tags" validate:"required"`
}

// RefreshResponse reports how many cached pages were marked stale.
type RefreshResponse struct {
	Invalidated int `json:"invalidated" example:"2"`
}
