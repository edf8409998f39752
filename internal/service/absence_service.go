package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type absenceRepository interface {
	List(ctx context.Context, filter models.AbsenceFilter) ([]models.AbsenceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Absence, error)
	Create(ctx context.Context, absence *models.Absence) error
	Update(ctx context.Context, absence *models.Absence) error
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context, filter models.AbsenceFilter) (*models.AbsenceStatistics, error)
}

type participantReader interface {
	FindByID(ctx context.Context, id string) (*models.Participant, error)
}

// AbsenceRequest is the create/update payload for absence records.
type AbsenceRequest struct {
	ParticipantID string    `json:"participant_id" validate:"required,uuid"`
	FormationID   string    `json:"formation_id" validate:"required,uuid"`
	Date          time.Time `json:"date" validate:"required"`
	Reason        string    `json:"reason" validate:"max=1000"`
	Status        string    `json:"status" validate:"omitempty,oneof=PENDING JUSTIFIED UNJUSTIFIED"`
	Comment       *string   `json:"comment" validate:"omitempty,max=1000"`
}

const statisticsCachePrefix = "absences:statistics"

// AbsenceService manages absence records and their statistics aggregate.
type AbsenceService struct {
	absences     absenceRepository
	participants participantReader
	formations   formationReader
	cache        permissionCache
	validate     *validator.Validate
	logger       *zap.Logger
	statsTTL     time.Duration
}

// NewAbsenceService constructs an AbsenceService.
func NewAbsenceService(absences absenceRepository, participants participantReader, formations formationReader, cache permissionCache, validate *validator.Validate, logger *zap.Logger, statsTTL time.Duration) *AbsenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = 10 * time.Minute
	}
	return &AbsenceService{
		absences:     absences,
		participants: participants,
		formations:   formations,
		cache:        cache,
		validate:     validate,
		logger:       logger,
		statsTTL:     statsTTL,
	}
}

// List returns absences with pagination.
func (s *AbsenceService) List(ctx context.Context, filter models.AbsenceFilter) ([]models.AbsenceDetail, *models.Pagination, error) {
	absences, total, err := s.absences.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absences")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return absences, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one absence record.
func (s *AbsenceService) Get(ctx context.Context, id string) (*models.Absence, error) {
	absence, err := s.absences.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absence")
	}
	return absence, nil
}

// Create records a new absence after checking both referenced entities exist.
func (s *AbsenceService) Create(ctx context.Context, req AbsenceRequest) (*models.Absence, error) {
	if err := s.checkPayload(ctx, req); err != nil {
		return nil, err
	}

	absence := &models.Absence{
		ParticipantID: req.ParticipantID,
		FormationID:   req.FormationID,
		Date:          req.Date,
		Reason:        req.Reason,
		Status:        models.AbsenceStatus(req.Status),
		Comment:       req.Comment,
	}
	if err := s.absences.Create(ctx, absence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create absence")
	}

	s.invalidateStatistics(ctx)
	return absence, nil
}

// Update rewrites the mutable fields of an absence, including the
// justification ruling.
func (s *AbsenceService) Update(ctx context.Context, id string, req AbsenceRequest) (*models.Absence, error) {
	if err := s.checkPayload(ctx, req); err != nil {
		return nil, err
	}

	absence, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	absence.Date = req.Date
	absence.Reason = req.Reason
	absence.Comment = req.Comment
	if req.Status != "" {
		absence.Status = models.AbsenceStatus(req.Status)
	}

	if err := s.absences.Update(ctx, absence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update absence")
	}

	s.invalidateStatistics(ctx)
	return absence, nil
}

// Delete removes an absence record.
func (s *AbsenceService) Delete(ctx context.Context, id string) error {
	if err := s.absences.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "absence not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete absence")
	}
	s.invalidateStatistics(ctx)
	return nil
}

// Statistics aggregates absences by status and calendar month. Unfiltered
// results are cached; any scoped query goes straight to the database.
func (s *AbsenceService) Statistics(ctx context.Context, filter models.AbsenceFilter) (*models.AbsenceStatistics, error) {
	cacheable := filter == (models.AbsenceFilter{})

	if cacheable && s.cache != nil {
		var cached models.AbsenceStatistics
		if err := s.cache.Get(ctx, statisticsCachePrefix, &cached); err == nil {
			return &cached, nil
		}
	}

	stats, err := s.absences.Statistics(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute absence statistics")
	}

	if cacheable && s.cache != nil {
		if err := s.cache.Set(ctx, statisticsCachePrefix, stats, s.statsTTL); err != nil {
			s.logger.Warn("failed to cache absence statistics", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *AbsenceService) checkPayload(ctx context.Context, req AbsenceRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence payload")
	}

	if _, err := s.participants.FindByID(ctx, req.ParticipantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
				"participant_id": {"The selected participant does not exist."},
			})
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check participant")
	}
	if _, err := s.formations.FindByID(ctx, req.FormationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
				"formation_id": {"The selected formation does not exist."},
			})
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check formation")
	}
	return nil
}

func (s *AbsenceService) invalidateStatistics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statisticsCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}
