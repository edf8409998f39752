package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/repository"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type participantRepository interface {
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error)
	FindByID(ctx context.Context, id string) (*models.Participant, error)
	Create(ctx context.Context, participant *models.Participant) error
	Update(ctx context.Context, participant *models.Participant) error
	Delete(ctx context.Context, id string) error
	Progress(ctx context.Context) ([]models.ParticipantProgress, error)
}

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByPair(ctx context.Context, formationID, participantID string) (*models.Enrollment, error)
	Attach(ctx context.Context, enrollment *models.Enrollment) error
	Detach(ctx context.Context, formationID, participantID string) (int64, error)
	UpdateStatus(ctx context.Context, id string, version int, status models.EnrollmentStatus) error
}

type formationReader interface {
	FindByID(ctx context.Context, id string) (*models.Formation, error)
}

// ParticipantRequest is the create/update payload for participants.
type ParticipantRequest struct {
	FullName      string `json:"full_name" validate:"required,max=255"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"max=30"`
	PaymentStatus string `json:"payment_status" validate:"omitempty,oneof=PENDING PAID CANCELLED REFUNDED"`
}

// AttachRequest enrolls a participant into a formation with an optional
// initial pivot status.
type AttachRequest struct {
	FormationID string `json:"formation_id" validate:"required,uuid"`
	Status      string `json:"status" validate:"omitempty,oneof=PENDING ENROLLED COMPLETED ABANDONED"`
}

// EnrollmentStatusRequest overwrites the pivot status for an existing pair.
type EnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING ENROLLED COMPLETED ABANDONED"`
}

const progressCacheKey = "participants:progress"

// ParticipantService implements participant CRUD and the enrollment ledger
// linking participants to formations.
type ParticipantService struct {
	participants participantRepository
	enrollments  enrollmentRepository
	formations   formationReader
	cache        permissionCache
	validate     *validator.Validate
	logger       *zap.Logger
	progressTTL  time.Duration
}

// NewParticipantService constructs a ParticipantService.
func NewParticipantService(participants participantRepository, enrollments enrollmentRepository, formations formationReader, cache permissionCache, validate *validator.Validate, logger *zap.Logger, progressTTL time.Duration) *ParticipantService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if progressTTL <= 0 {
		progressTTL = 5 * time.Minute
	}
	return &ParticipantService{
		participants: participants,
		enrollments:  enrollments,
		formations:   formations,
		cache:        cache,
		validate:     validate,
		logger:       logger,
		progressTTL:  progressTTL,
	}
}

// List returns participants with pagination.
func (s *ParticipantService) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, *models.Pagination, error) {
	participants, total, err := s.participants.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return participants, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one participant.
func (s *ParticipantService) Get(ctx context.Context, id string) (*models.Participant, error) {
	participant, err := s.participants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	return participant, nil
}

// Create registers a new participant.
func (s *ParticipantService) Create(ctx context.Context, req ParticipantRequest) (*models.Participant, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid participant payload")
	}

	participant := &models.Participant{
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		PaymentStatus: models.PaymentStatus(req.PaymentStatus),
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.WithFields(appErrors.ErrConflict, map[string][]string{
				"email": {"The email has already been taken."},
			})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create participant")
	}
	s.invalidateProgress(ctx)
	return participant, nil
}

// Update rewrites the mutable fields of a participant.
func (s *ParticipantService) Update(ctx context.Context, id string, req ParticipantRequest) (*models.Participant, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid participant payload")
	}

	participant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	participant.FullName = req.FullName
	participant.Email = req.Email
	participant.Phone = req.Phone
	if req.PaymentStatus != "" {
		participant.PaymentStatus = models.PaymentStatus(req.PaymentStatus)
	}

	if err := s.participants.Update(ctx, participant); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.WithFields(appErrors.ErrConflict, map[string][]string{
				"email": {"The email has already been taken."},
			})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update participant")
	}
	return participant, nil
}

// Delete removes a participant with its enrollments and absences.
func (s *ParticipantService) Delete(ctx context.Context, id string) error {
	if err := s.participants.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete participant")
	}
	s.invalidateProgress(ctx)
	return nil
}

// ListEnrollments returns the enrollment ledger with pagination.
func (s *ParticipantService) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Attach enrolls a participant into a formation. Both sides must exist and
// the pair must not already be attached.
func (s *ParticipantService) Attach(ctx context.Context, participantID string, req AttachRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.Get(ctx, participantID); err != nil {
		return nil, err
	}
	if _, err := s.formations.FindByID(ctx, req.FormationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}

	enrollment := &models.Enrollment{
		FormationID:   req.FormationID,
		ParticipantID: participantID,
		Status:        models.EnrollmentStatus(req.Status),
	}
	if err := s.enrollments.Attach(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "participant is already enrolled in this formation")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach participant")
	}

	s.invalidateProgress(ctx)
	return enrollment, nil
}

// Detach removes the enrollment pair. Detaching an absent pair is an error;
// the ledger never silently no-ops.
func (s *ParticipantService) Detach(ctx context.Context, participantID, formationID string) error {
	affected, err := s.enrollments.Detach(ctx, formationID, participantID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach participant")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	s.invalidateProgress(ctx)
	return nil
}

// UpdateEnrollmentStatus overwrites the pivot status for an existing pair.
// Any valid status may replace any other.
func (s *ParticipantService) UpdateEnrollmentStatus(ctx context.Context, participantID, formationID string, req EnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	enrollment, err := s.enrollments.FindByPair(ctx, formationID, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	status := models.EnrollmentStatus(req.Status)
	if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, enrollment.Version, status); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	enrollment.Status = status
	enrollment.Version++
	s.invalidateProgress(ctx)
	return enrollment, nil
}

// Progress returns the per-participant progress aggregate, served from cache
// when fresh.
func (s *ParticipantService) Progress(ctx context.Context) ([]models.ParticipantProgress, error) {
	if s.cache != nil {
		var cached []models.ParticipantProgress
		if err := s.cache.Get(ctx, progressCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	progress, err := s.participants.Progress(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute participant progress")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, progressCacheKey, progress, s.progressTTL); err != nil {
			s.logger.Warn("failed to cache participant progress", zap.Error(err))
		}
	}
	return progress, nil
}

func (s *ParticipantService) invalidateProgress(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("%s*", progressCacheKey)); err != nil {
		s.logger.Warn("failed to invalidate progress cache", zap.Error(err))
	}
}
