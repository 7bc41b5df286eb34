package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/backend"
	"github.com/prn-tf/owl-middleware/internal/domain"
	"github.com/prn-tf/owl-middleware/internal/repository"
)

// Search limits.
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// SearchService forwards semantic search and index administration.
type SearchService struct {
	containerRepo repository.ContainerRepository
	backend       RemoteBackend
	logger        zerolog.Logger
}

// NewSearchService creates a new SearchService.
func NewSearchService(containerRepo repository.ContainerRepository, remote RemoteBackend, logger zerolog.Logger) *SearchService {
	return &SearchService{
		containerRepo: containerRepo,
		backend:       remote,
		logger:        logger.With().Str("service", "search").Logger(),
	}
}

// SearchOutput contains ranked paths for a query.
type SearchOutput struct {
	Query   string             `json:"query"`
	Results []domain.SearchHit `json:"results"`
	Count   int                `json:"count"`
}

// BackendStatus describes the backend's root endpoint.
type BackendStatus struct {
	Online  bool   `json:"online"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClampSearchLimit applies the default and the [1, MaxSearchLimit] bounds.
func ClampSearchLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}

// Search runs a semantic search inside one container.
// An empty query is rejected before anything else is touched.
func (s *SearchService) Search(ctx context.Context, caller *domain.User, containerID, query string, limit int) (*SearchOutput, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	container, err := loadContainer(ctx, s.containerRepo, s.logger, caller, containerID)
	if err != nil {
		return nil, err
	}

	resp, err := s.backend.SemanticSearch(ctx, backend.SearchRequest{
		Query:       query,
		Limit:       ClampSearchLimit(limit),
		UserID:      container.UserID,
		ContainerID: container.ID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("container_id", container.ID).Msg("semantic search failed")
		return nil, err
	}

	hits := make([]domain.SearchHit, len(resp.Results))
	for i, r := range resp.Results {
		hits[i] = domain.SearchHit{Path: r.Path, Score: r.Score}
	}

	s.logger.Debug().
		Str("container_id", container.ID).
		Int("results", len(hits)).
		Msg("semantic search completed")

	return &SearchOutput{Query: query, Results: hits, Count: resp.Count}, nil
}

// RebuildIndex asks the backend to rebuild its search index. Admin only.
func (s *SearchService) RebuildIndex(ctx context.Context, caller *domain.User) (string, error) {
	if err := requireAdmin(caller); err != nil {
		return "", err
	}

	resp, err := s.backend.RebuildIndex(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("index rebuild failed")
		return "", err
	}

	s.logger.Info().Int64("user_id", caller.ID).Msg("index rebuild requested")
	return resp.Message, nil
}

// Status reports the backend's root message. Admin only.
// Backend failures are part of the status, not an error.
func (s *SearchService) Status(ctx context.Context, caller *domain.User) (*BackendStatus, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	resp, err := s.backend.Root(ctx)
	if err != nil {
		return &BackendStatus{Online: false, Error: domain.Message(err)}, nil
	}
	return &BackendStatus{Online: true, Message: resp.Message}, nil
}

// Health probes the backend. Any failure means unhealthy.
func (s *SearchService) Health(ctx context.Context) bool {
	ok, err := s.backend.Health(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("backend health probe failed")
		return false
	}
	return ok
}
