package api

import (
	"context"

	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/querycache"
)

// Service coordinates the list cache and the mutation flows for the gateway.
type Service struct {
	cache   *querycache.Cache
	creator *noteflow.Creator
	deleter *noteflow.Deleter
}

// NewService creates a new gateway service.
func NewService(cache *querycache.Cache, creator *noteflow.Creator, deleter *noteflow.Deleter) *Service {
	return &Service{cache: cache, creator: creator, deleter: deleter}
}

// ListNotes returns one page, served from the cache while it is fresh.
func (s *Service) ListNotes(ctx context.Context, params models.QueryParams) (models.PagedResult, error) {
	res, err := s.cache.Fetch(ctx, params)
	if err != nil {
		return models.PagedResult{}, err
	}
	if res.Notes == nil {
		res.Notes = []models.Note{}
	}
	return res, nil
}

// CreateNote validates and submits draft. Each request gets its own form
// state, so concurrent callers never see each other's drafts.
func (s *Service) CreateNote(ctx context.Context, draft models.FormDraft) (models.Note, error) {
	return s.creator.Fork().Create(ctx, draft)
}

// DeleteNote deletes the note with id.
func (s *Service) DeleteNote(ctx context.Context, id string) (models.Note, error) {
	return s.deleter.Delete(ctx, id)
}

// Refresh marks every cached page stale.
func (s *Service) Refresh() int {
	return s.cache.Invalidate(models.NotesKeyPrefix)
}
