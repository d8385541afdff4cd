package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/portfolio-admin/internal/model"
	"github.com/sakif/portfolio-admin/internal/repository"
)

// PublicationService reads the log of opened pull requests.
type PublicationService struct {
	repo   repository.PublicationRepository
	logger *slog.Logger
}

// NewPublicationService creates a PublicationService.
func NewPublicationService(repo repository.PublicationRepository, logger *slog.Logger) *PublicationService {
	return &PublicationService{repo: repo, logger: logger}
}

// List returns publications newest first. Out-of-range limits are clamped to
// [1, MaxListLimit], with 0 meaning DefaultListLimit; negative offsets become 0.
func (s *PublicationService) List(ctx context.Context, limit, offset int) ([]model.Publication, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	pubs, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("service/publications: listing: %w", err)
	}
	return pubs, nil
}
