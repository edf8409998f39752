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

// AbsenceRepository handles persistence of absence records.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository constructs the repository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

func absenceConditions(filter models.AbsenceFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.ParticipantID != "" {
		conditions = append(conditions, fmt.Sprintf("a.participant_id = $%d", len(args)+1))
		args = append(args, filter.ParticipantID)
	}
	if filter.FormationID != "" {
		conditions = append(conditions, fmt.Sprintf("a.formation_id = $%d", len(args)+1))
		args = append(args, filter.FormationID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	return conditions, args
}

// List returns absences filtered by the provided criteria.
func (r *AbsenceRepository) List(ctx context.Context, filter models.AbsenceFilter) ([]models.AbsenceDetail, int, error) {
	base := `FROM absences a
LEFT JOIN participants p ON p.id = a.participant_id
LEFT JOIN formations f ON f.id = a.formation_id`
	conditions, args := absenceConditions(filter)

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"date":             "a.date",
		"participant_name": "p.full_name",
		"created_at":       "a.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT a.id, a.participant_id, a.formation_id, a.date, a.reason, a.status, a.comment,
        a.created_at, a.updated_at, p.full_name AS participant_name, f.titre AS formation_titre
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var absences []models.AbsenceDetail
	if err := r.db.SelectContext(ctx, &absences, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list absences: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count absences: %w", err)
	}
	return absences, total, nil
}

// FindByID returns an absence by its ID.
func (r *AbsenceRepository) FindByID(ctx context.Context, id string) (*models.Absence, error) {
	const query = `SELECT id, participant_id, formation_id, date, reason, status, comment, created_at, updated_at
        FROM absences WHERE id = $1 LIMIT 1`
	var absence models.Absence
	if err := r.db.GetContext(ctx, &absence, query, id); err != nil {
		return nil, err
	}
	return &absence, nil
}

// Create persists a new absence record.
func (r *AbsenceRepository) Create(ctx context.Context, absence *models.Absence) error {
	if absence.ID == "" {
		absence.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	absence.CreatedAt = now
	absence.UpdatedAt = now
	if absence.Status == "" {
		absence.Status = models.AbsenceStatusPending
	}

	const query = `INSERT INTO absences (id, participant_id, formation_id, date, reason, status, comment, created_at, updated_at)
        VALUES (:id, :participant_id, :formation_id, :date, :reason, :status, :comment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, absence); err != nil {
		return fmt.Errorf("create absence: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an absence.
func (r *AbsenceRepository) Update(ctx context.Context, absence *models.Absence) error {
	absence.UpdatedAt = time.Now().UTC()
	const query = `UPDATE absences SET date = :date, reason = :reason, status = :status, comment = :comment,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, absence); err != nil {
		return fmt.Errorf("update absence: %w", err)
	}
	return nil
}

// Delete removes an absence record.
func (r *AbsenceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM absences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete absence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete absence rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Statistics aggregates counts by status and by calendar month for the
// filtered scope.
func (r *AbsenceRepository) Statistics(ctx context.Context, filter models.AbsenceFilter) (*models.AbsenceStatistics, error) {
	conditions, args := absenceConditions(filter)
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	statusQuery := fmt.Sprintf(`SELECT
        COUNT(*) AS total,
        COUNT(*) FILTER (WHERE a.status = 'PENDING') AS pending,
        COUNT(*) FILTER (WHERE a.status = 'JUSTIFIED') AS justified,
        COUNT(*) FILTER (WHERE a.status = 'UNJUSTIFIED') AS unjustified
        FROM absences a%s`, clause)

	var stats struct {
		Total       int `db:"total"`
		Pending     int `db:"pending"`
		Justified   int `db:"justified"`
		Unjustified int `db:"unjustified"`
	}
	if err := r.db.GetContext(ctx, &stats, statusQuery, args...); err != nil {
		return nil, fmt.Errorf("absence status counts: %w", err)
	}

	monthQuery := fmt.Sprintf(`SELECT TO_CHAR(a.date, 'YYYY-MM') AS month, COUNT(*) AS count
        FROM absences a%s GROUP BY 1 ORDER BY 1`, clause)
	var months []models.AbsenceMonthCount
	if err := r.db.SelectContext(ctx, &months, monthQuery, args...); err != nil {
		return nil, fmt.Errorf("absence month counts: %w", err)
	}

	return &models.AbsenceStatistics{
		Total:       stats.Total,
		Pending:     stats.Pending,
		Justified:   stats.Justified,
		Unjustified: stats.Unjustified,
		ByMonth:     months,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
