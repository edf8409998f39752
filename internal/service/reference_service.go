package service

import (
	"context"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type referenceRepository interface {
	ListTrainers(ctx context.Context) ([]models.Trainer, error)
	ListCities(ctx context.Context) ([]models.City, error)
	ListTracks(ctx context.Context) ([]models.Track, error)
}

// ReferenceService serves the trainer/city/track dropdown listings.
type ReferenceService struct {
	references referenceRepository
}

// NewReferenceService constructs a ReferenceService.
func NewReferenceService(references referenceRepository) *ReferenceService {
	return &ReferenceService{references: references}
}

// Trainers returns all trainers.
func (s *ReferenceService) Trainers(ctx context.Context) ([]models.Trainer, error) {
	trainers, err := s.references.ListTrainers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainers")
	}
	return trainers, nil
}

// Cities returns all cities.
func (s *ReferenceService) Cities(ctx context.Context) ([]models.City, error) {
	cities, err := s.references.ListCities(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cities")
	}
	return cities, nil
}

// Tracks returns all tracks.
func (s *ReferenceService) Tracks(ctx context.Context) ([]models.Track, error) {
	tracks, err := s.references.ListTracks(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tracks")
	}
	return tracks, nil
}
