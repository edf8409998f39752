package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mehdifatimi/formation-api/internal/models"
)

// ParticipantRepository handles persistence of participants.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// List returns participants based on filters with total count.
func (r *ParticipantRepository) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, int, error) {
	baseQuery := `FROM participants WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
		args = append(args, filter.PaymentStatus)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":  true,
		"email":      true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, full_name, email, phone, payment_status, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list participants: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count participants: %w", err)
	}

	return participants, total, nil
}

// FindByID returns a participant by identifier.
func (r *ParticipantRepository) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	const query = `SELECT id, full_name, email, phone, payment_status, created_at, updated_at FROM participants WHERE id = $1 LIMIT 1`
	var participant models.Participant
	if err := r.db.GetContext(ctx, &participant, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	return &participant, nil
}

// Create inserts a new participant.
func (r *ParticipantRepository) Create(ctx context.Context, participant *models.Participant) error {
	if participant.ID == "" {
		participant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	participant.CreatedAt = now
	participant.UpdatedAt = now
	if participant.PaymentStatus == "" {
		participant.PaymentStatus = models.PaymentStatusPending
	}

	const query = `INSERT INTO participants (id, full_name, email, phone, payment_status, created_at, updated_at)
        VALUES (:id, :full_name, :email, :phone, :payment_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, participant); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// Update updates mutable fields of a participant.
func (r *ParticipantRepository) Update(ctx context.Context, participant *models.Participant) error {
	participant.UpdatedAt = time.Now().UTC()
	const query = `UPDATE participants SET full_name = :full_name, email = :email, phone = :phone,
        payment_status = :payment_status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, participant); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

// Delete removes a participant together with its enrollments and absences in
// one transaction.
func (r *ParticipantRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete participant: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM absences WHERE participant_id = $1`, id); err != nil {
		return fmt.Errorf("delete participant absences: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE participant_id = $1`, id); err != nil {
		return fmt.Errorf("delete participant enrollments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete participant rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete participant: %w", err)
	}
	return nil
}

// Progress aggregates enrollment and absence counts per participant.
func (r *ParticipantRepository) Progress(ctx context.Context) ([]models.ParticipantProgress, error) {
	const query = `SELECT p.id AS participant_id, p.full_name,
        COUNT(DISTINCT e.id) AS total_enrollments,
        COUNT(DISTINCT e.id) FILTER (WHERE e.status = 'COMPLETED') AS completed_formations,
        COUNT(DISTINCT e.id) FILTER (WHERE e.status = 'ENROLLED') AS active_formations,
        COUNT(DISTINCT a.id) AS total_absences,
        COUNT(DISTINCT a.id) FILTER (WHERE a.status = 'UNJUSTIFIED') AS unjustified_absences
        FROM participants p
        LEFT JOIN enrollments e ON e.participant_id = p.id
        LEFT JOIN absences a ON a.participant_id = p.id
        GROUP BY p.id, p.full_name
        ORDER BY p.full_name ASC`
	var progress []models.ParticipantProgress
	if err := r.db.SelectContext(ctx, &progress, query); err != nil {
		return nil, fmt.Errorf("participant progress: %w", err)
	}
	return progress, nil
}
