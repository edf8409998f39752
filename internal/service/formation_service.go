package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/repository"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type formationRepository interface {
	List(ctx context.Context, filter models.FormationFilter) ([]models.FormationDetail, int, error)
	ListPending(ctx context.Context) ([]models.FormationDetail, error)
	FindByID(ctx context.Context, id string) (*models.Formation, error)
	Create(ctx context.Context, formation *models.Formation) error
	Update(ctx context.Context, formation *models.Formation) error
	UpdateStatus(ctx context.Context, id string, version int, status models.FormationStatus) error
	Validate(ctx context.Context, id string, version int, validatorID, comment string) error
	Reject(ctx context.Context, id string, version int, validatorID, reason string) error
	Delete(ctx context.Context, id string) error
}

type referenceChecker interface {
	TrainerExists(ctx context.Context, id string) (bool, error)
	CityExists(ctx context.Context, id string) (bool, error)
	TrackExists(ctx context.Context, id string) (bool, error)
}

type permissionChecker interface {
	HasPermission(ctx context.Context, userID string, perm models.PermissionSlug) bool
}

// FormationRequest is the create/update payload for formations.
type FormationRequest struct {
	Titre             string    `json:"titre" validate:"required,max=255"`
	Description       string    `json:"description" validate:"max=2000"`
	DateDebut         time.Time `json:"date_debut" validate:"required"`
	DateFin           time.Time `json:"date_fin" validate:"required"`
	Duree             int       `json:"duree" validate:"required,gt=0"`
	Niveau            string    `json:"niveau" validate:"required,oneof=débutant intermédiaire avancé"`
	Prix              float64   `json:"prix" validate:"gte=0"`
	PlacesDisponibles int       `json:"places_disponibles" validate:"required,gt=0"`
	FormateurID       string    `json:"formateur_id" validate:"required,uuid"`
	VilleID           string    `json:"ville_id" validate:"required,uuid"`
	FiliereID         string    `json:"filiere_id" validate:"required,uuid"`
}

// ValidateFormationRequest carries the optional approval comment.
type ValidateFormationRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

// RejectFormationRequest carries the mandatory rejection reason.
type RejectFormationRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// UpdateFormationStatusRequest moves a formation along the operational axis.
type UpdateFormationStatusRequest struct {
	Statut  models.FormationStatus `json:"statut" validate:"required"`
	Version int                    `json:"version" validate:"gte=0"`
}

// FormationService implements the formation lifecycle: CRUD plus the
// validation workflow and operational status transitions.
type FormationService struct {
	formations formationRepository
	references referenceChecker
	authz      permissionChecker
	audit      auditWriter
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewFormationService constructs a FormationService.
func NewFormationService(formations formationRepository, references referenceChecker, authz permissionChecker, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *FormationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormationService{
		formations: formations,
		references: references,
		authz:      authz,
		audit:      audit,
		validate:   validate,
		logger:     logger,
	}
}

// List returns formations with pagination.
func (s *FormationService) List(ctx context.Context, filter models.FormationFilter) ([]models.FormationDetail, *models.Pagination, error) {
	formations, total, err := s.formations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list formations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return formations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListPending returns the validation queue, oldest submissions first.
func (s *FormationService) ListPending(ctx context.Context) ([]models.FormationDetail, error) {
	formations, err := s.formations.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending formations")
	}
	return formations, nil
}

// Get returns one formation.
func (s *FormationService) Get(ctx context.Context, id string) (*models.Formation, error) {
	formation, err := s.formations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load formation")
	}
	return formation, nil
}

// Create registers a new formation in PENDING state.
func (s *FormationService) Create(ctx context.Context, actor *models.JWTClaims, req FormationRequest) (*models.Formation, error) {
	if err := s.checkPayload(ctx, req); err != nil {
		return nil, err
	}

	formation := &models.Formation{
		Titre:             req.Titre,
		Description:       req.Description,
		DateDebut:         req.DateDebut,
		DateFin:           req.DateFin,
		Duree:             req.Duree,
		Niveau:            models.FormationLevel(req.Niveau),
		Prix:              req.Prix,
		PlacesDisponibles: req.PlacesDisponibles,
		Statut:            models.FormationStatusPending,
		FormateurID:       req.FormateurID,
		VilleID:           req.VilleID,
		FiliereID:         req.FiliereID,
	}
	if actor != nil {
		formation.CreatedBy = actor.UserID
	}

	if err := s.formations.Create(ctx, formation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create formation")
	}
	return formation, nil
}

// Update rewrites the descriptive fields of a formation. The approval state is
// untouched; it only moves through Validate, Reject, or UpdateStatus.
func (s *FormationService) Update(ctx context.Context, id string, req FormationRequest) (*models.Formation, error) {
	if err := s.checkPayload(ctx, req); err != nil {
		return nil, err
	}

	formation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	formation.Titre = req.Titre
	formation.Description = req.Description
	formation.DateDebut = req.DateDebut
	formation.DateFin = req.DateFin
	formation.Duree = req.Duree
	formation.Niveau = models.FormationLevel(req.Niveau)
	formation.Prix = req.Prix
	formation.PlacesDisponibles = req.PlacesDisponibles
	formation.FormateurID = req.FormateurID
	formation.VilleID = req.VilleID
	formation.FiliereID = req.FiliereID

	if err := s.formations.Update(ctx, formation); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "formation was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update formation")
	}
	return formation, nil
}

// Validate approves a pending formation. The actor must hold the
// validate-formations permission or the admin role.
func (s *FormationService) Validate(ctx context.Context, actor *models.JWTClaims, id string, req ValidateFormationRequest) (*models.Formation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	if err := s.requireDecisionRight(ctx, actor, models.PermValidateFormations); err != nil {
		return nil, err
	}

	formation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePending(formation); err != nil {
		return nil, err
	}

	if err := s.formations.Validate(ctx, id, formation.Version, actor.UserID, req.Comment); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "formation was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate formation")
	}

	s.recordDecision(ctx, actor, models.AuditActionFormationValidate, id, map[string]interface{}{"comment": req.Comment})
	return s.Get(ctx, id)
}

// Reject declines a pending formation with a mandatory reason.
func (s *FormationService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req RejectFormationRequest) (*models.Formation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}
	if err := s.requireDecisionRight(ctx, actor, models.PermRejectFormations); err != nil {
		return nil, err
	}

	formation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePending(formation); err != nil {
		return nil, err
	}

	if err := s.formations.Reject(ctx, id, formation.Version, actor.UserID, req.Reason); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "formation was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject formation")
	}

	s.recordDecision(ctx, actor, models.AuditActionFormationReject, id, map[string]interface{}{"reason": req.Reason})
	return s.Get(ctx, id)
}

// UpdateStatus moves a validated formation along the operational axis
// (VALIDATED -> ONGOING -> COMPLETED, or cancellation).
func (s *FormationService) UpdateStatus(ctx context.Context, id string, req UpdateFormationStatusRequest) (*models.Formation, error) {
	if !req.Statut.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Statut))
	}

	formation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !formation.Statut.CanTransitionTo(req.Statut) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("cannot transition from %s to %s", formation.Statut, req.Statut))
	}

	version := formation.Version
	if req.Version > 0 {
		version = req.Version
	}

	if err := s.formations.UpdateStatus(ctx, id, version, req.Statut); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "formation was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update formation status")
	}
	return s.Get(ctx, id)
}

// Delete removes a formation and its dependent records.
func (s *FormationService) Delete(ctx context.Context, id string) error {
	if err := s.formations.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "formation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete formation")
	}
	return nil
}

func (s *FormationService) checkPayload(ctx context.Context, req FormationRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid formation payload")
	}
	if !req.DateFin.After(req.DateDebut) {
		return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
			"date_fin": {"The end date must be after the start date."},
		})
	}

	if ok, err := s.references.TrainerExists(ctx, req.FormateurID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check trainer")
	} else if !ok {
		return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
			"formateur_id": {"The selected trainer does not exist."},
		})
	}
	if ok, err := s.references.CityExists(ctx, req.VilleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check city")
	} else if !ok {
		return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
			"ville_id": {"The selected city does not exist."},
		})
	}
	if ok, err := s.references.TrackExists(ctx, req.FiliereID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check track")
	} else if !ok {
		return appErrors.WithFields(appErrors.ErrValidation, map[string][]string{
			"filiere_id": {"The selected track does not exist."},
		})
	}
	return nil
}

func (s *FormationService) requireDecisionRight(ctx context.Context, actor *models.JWTClaims, perm models.PermissionSlug) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.HasRole(models.RoleAdmin) {
		return nil
	}
	if s.authz != nil && s.authz.HasPermission(ctx, actor.UserID, perm) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s permission required", perm))
}

func (s *FormationService) requirePending(formation *models.Formation) error {
	switch formation.Statut {
	case models.FormationStatusPending:
		return nil
	case models.FormationStatusValidated:
		return appErrors.Clone(appErrors.ErrInvalidState, "formation is already validated")
	case models.FormationStatusRejected:
		return appErrors.Clone(appErrors.ErrInvalidState, "formation is already rejected")
	default:
		return appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("formation in state %s cannot be validated or rejected", formation.Statut))
	}
}

func (s *FormationService) recordDecision(ctx context.Context, actor *models.JWTClaims, action, formationID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "formations",
		ResourceID: &formationID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record formation audit log", zap.Error(err))
	}
}
