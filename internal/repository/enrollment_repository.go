package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mehdifatimi/formation-api/internal/models"
)

// EnrollmentRepository handles persistence of the formation-participant
// pivot records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN formations f ON f.id = e.formation_id
LEFT JOIN participants p ON p.id = e.participant_id`
	var conditions []string
	var args []interface{}

	if filter.FormationID != "" {
		conditions = append(conditions, fmt.Sprintf("e.formation_id = $%d", len(args)+1))
		args = append(args, filter.FormationID)
	}
	if filter.ParticipantID != "" {
		conditions = append(conditions, fmt.Sprintf("e.participant_id = $%d", len(args)+1))
		args = append(args, filter.ParticipantID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.formation_id, e.participant_id, e.status, e.enrolled_at, e.version,
        f.titre AS formation_titre, p.full_name AS participant_name
        %s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByPair returns the pivot for a (formation, participant) pair.
func (r *EnrollmentRepository) FindByPair(ctx context.Context, formationID, participantID string) (*models.Enrollment, error) {
	const query = `SELECT id, formation_id, participant_id, status, enrolled_at, version
        FROM enrollments WHERE formation_id = $1 AND participant_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, formationID, participantID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Attach inserts a unique pivot row. The unique (formation_id,
// participant_id) constraint is the backstop against racing duplicates.
func (r *EnrollmentRepository) Attach(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	enrollment.Version = 1

	const query = `INSERT INTO enrollments (id, formation_id, participant_id, status, enrolled_at, version)
        VALUES (:id, :formation_id, :participant_id, :status, :enrolled_at, :version)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("attach enrollment: %w", err)
	}
	return nil
}

// Detach removes the pivot row, reporting how many rows matched so the
// service can distinguish a missing pair.
func (r *EnrollmentRepository) Detach(ctx context.Context, formationID, participantID string) (int64, error) {
	const query = `DELETE FROM enrollments WHERE formation_id = $1 AND participant_id = $2`
	res, err := r.db.ExecContext(ctx, query, formationID, participantID)
	if err != nil {
		return 0, fmt.Errorf("detach enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach enrollment rows: %w", err)
	}
	return affected, nil
}

// UpdateStatus overwrites the pivot status with CAS on version.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, version int, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3, version = version + 1 WHERE id = $1 AND version = $2`
	res, err := r.db.ExecContext(ctx, query, id, version, status)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// ListByFormation returns all pivots for a formation.
func (r *EnrollmentRepository) ListByFormation(ctx context.Context, formationID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.formation_id, e.participant_id, e.status, e.enrolled_at, e.version,
        f.titre AS formation_titre, p.full_name AS participant_name
        FROM enrollments e
        LEFT JOIN formations f ON f.id = e.formation_id
        LEFT JOIN participants p ON p.id = e.participant_id
        WHERE e.formation_id = $1
        ORDER BY p.full_name ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, formationID); err != nil {
		return nil, fmt.Errorf("list formation enrollments: %w", err)
	}
	return enrollments, nil
}
