package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mehdifatimi/formation-api/internal/models"
)

// ReferenceRepository reads the trainer/city/track reference tables used for
// foreign-key validation and dropdown listings.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListTrainers returns all trainers.
func (r *ReferenceRepository) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	const query = `SELECT id, full_name, email, specialty, created_at FROM trainers ORDER BY full_name`
	var trainers []models.Trainer
	if err := r.db.SelectContext(ctx, &trainers, query); err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}
	return trainers, nil
}

// ListCities returns all cities.
func (r *ReferenceRepository) ListCities(ctx context.Context) ([]models.City, error) {
	const query = `SELECT id, name FROM cities ORDER BY name`
	var cities []models.City
	if err := r.db.SelectContext(ctx, &cities, query); err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

// ListTracks returns all tracks.
func (r *ReferenceRepository) ListTracks(ctx context.Context) ([]models.Track, error) {
	const query = `SELECT id, name FROM tracks ORDER BY name`
	var tracks []models.Track
	if err := r.db.SelectContext(ctx, &tracks, query); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return tracks, nil
}

// TrainerExists reports whether the trainer row exists.
func (r *ReferenceRepository) TrainerExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM trainers WHERE id = $1 LIMIT 1`, id)
}

// CityExists reports whether the city row exists.
func (r *ReferenceRepository) CityExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM cities WHERE id = $1 LIMIT 1`, id)
}

// TrackExists reports whether the track row exists.
func (r *ReferenceRepository) TrackExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM tracks WHERE id = $1 LIMIT 1`, id)
}

func (r *ReferenceRepository) exists(ctx context.Context, query, id string) (bool, error) {
	var one int
	if err := r.db.GetContext(ctx, &one, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("existence check: %w", err)
	}
	return true, nil
}
