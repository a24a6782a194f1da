package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type listQuery struct {
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Search  string `json:"search"`
	Tag     string `json:"tag"`
	SortBy  string `json:"sortBy"`
}

func tagChoices() []any {
	out := make([]any, len(models.Tags))
	for i, t := range models.Tags {
		out[i] = string(t)
	}
	return out
}

// parseListQuery reads page, perPage, search, tag and sortBy. Absent values
// take their defaults.
func parseListQuery(q url.Values) (models.QueryParams, error) {
	bad := map[string]error{}
	atoi := func(name string) int {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			bad[name] = errors.New("must be an integer")
		}
		return n
	}
	lq := listQuery{
		Page:    atoi("page"),
		PerPage: atoi("perPage"),
		Search:  q.Get("search"),
		Tag:     q.Get("tag"),
		SortBy:  q.Get("sortBy"),
	}
	if len(bad) > 0 {
		return models.QueryParams{}, apperr.NewValidationError(bad)
	}

	err := validation.ValidateStruct(&lq,
		validation.Field(&lq.Page, validation.Min(1)),
		validation.Field(&lq.PerPage, validation.Min(1), validation.Max(100)),
		validation.Field(&lq.Tag, validation.In(tagChoices()...)),
		validation.Field(&lq.SortBy, validation.In(string(models.SortCreated), string(models.SortUpdated))),
	)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return models.QueryParams{}, apperr.NewValidationError(verrs)
		}
		return models.QueryParams{}, err
	}

	return models.QueryParams{
		Page:    lq.Page,
		PerPage: lq.PerPage,
		Search:  lq.Search,
		Tag:     models.Tag(lq.Tag),
		SortBy:  models.SortBy(lq.SortBy),
	}.Normalize(), nil
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List one page of notes
//	@Tags			notes
//	@Produce		json
//	@Param			page	query		int		false	"Page number, 1-based"
//	@Param			perPage	query		int		false	"Page size"
//	@Param			search	query		string	false	"Search term"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sortBy	query		string	false	"Sort field"	Enums(created, updated)
//	@Param			If-None-Match	header	string	false	"ETag of a previously fetched page"
//	@Success		200		{object}	NoteListResponse
//	@Success		304		"Not modified"
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	params, err := parseListQuery(r.URL.Query())
	if err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid query", Fields: ve.Fields})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid query"))
		return
	}

	res, err := h.svc.ListNotes(r.Context(), params)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSONCached(w, r, NoteListResponse{
		Notes:      res.Notes,
		TotalPages: res.TotalPages,
		Page:       params.Page,
		PerPage:    params.PerPage,
	})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Draft())
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if strings.TrimSpace(id) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	note, err := h.svc.DeleteNote(r.Context(), id)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Tags handles GET /api/tags.
//
//	@Summary		List the tags a note may carry
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	writeJSONCached(w, r, TagsResponse{Tags: models.Tags})
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Mark every cached page stale
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	RefreshResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RefreshResponse{Invalidated: h.svc.Refresh()})
}
