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

const formationColumns = `f.id, f.titre, f.description, f.date_debut, f.date_fin, f.duree, f.niveau, f.prix,
        f.places_disponibles, f.statut, f.formateur_id, f.ville_id, f.filiere_id, f.created_by,
        f.validated_by, f.validated_at, f.rejection_reason, f.version, f.created_at, f.updated_at`

// FormationRepository handles persistence of formations and their validation
// audit records.
type FormationRepository struct {
	db *sqlx.DB
}

// NewFormationRepository constructs the repository.
func NewFormationRepository(db *sqlx.DB) *FormationRepository {
	return &FormationRepository{db: db}
}

// List returns formations filtered by the provided criteria.
func (r *FormationRepository) List(ctx context.Context, filter models.FormationFilter) ([]models.FormationDetail, int, error) {
	base := `FROM formations f
LEFT JOIN trainers tr ON tr.id = f.formateur_id
LEFT JOIN cities ci ON ci.id = f.ville_id
LEFT JOIN tracks tk ON tk.id = f.filiere_id
LEFT JOIN users v ON v.id = f.validated_by`
	var conditions []string
	var args []interface{}

	if filter.Statut != "" {
		conditions = append(conditions, fmt.Sprintf("f.statut = $%d", len(args)+1))
		args = append(args, filter.Statut)
	}
	if filter.Niveau != "" {
		conditions = append(conditions, fmt.Sprintf("f.niveau = $%d", len(args)+1))
		args = append(args, filter.Niveau)
	}
	if filter.FormateurID != "" {
		conditions = append(conditions, fmt.Sprintf("f.formateur_id = $%d", len(args)+1))
		args = append(args, filter.FormateurID)
	}
	if filter.VilleID != "" {
		conditions = append(conditions, fmt.Sprintf("f.ville_id = $%d", len(args)+1))
		args = append(args, filter.VilleID)
	}
	if filter.FiliereID != "" {
		conditions = append(conditions, fmt.Sprintf("f.filiere_id = $%d", len(args)+1))
		args = append(args, filter.FiliereID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(f.titre) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"date_debut": "f.date_debut",
		"titre":      "f.titre",
		"prix":       "f.prix",
		"created_at": "f.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "f.date_debut"
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

	query := fmt.Sprintf(`SELECT %s,
        tr.full_name AS formateur_name, ci.name AS ville_name, tk.name AS filiere_name,
        v.full_name AS validator_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, formationColumns, base+clause, orderBy, order, size, offset)

	var formations []models.FormationDetail
	if err := r.db.SelectContext(ctx, &formations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list formations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count formations: %w", err)
	}
	return formations, total, nil
}

// ListPending returns formations awaiting validation, oldest first.
func (r *FormationRepository) ListPending(ctx context.Context) ([]models.FormationDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        tr.full_name AS formateur_name, ci.name AS ville_name, tk.name AS filiere_name,
        v.full_name AS validator_name
        FROM formations f
        LEFT JOIN trainers tr ON tr.id = f.formateur_id
        LEFT JOIN cities ci ON ci.id = f.ville_id
        LEFT JOIN tracks tk ON tk.id = f.filiere_id
        LEFT JOIN users v ON v.id = f.validated_by
        WHERE f.statut = $1
        ORDER BY f.created_at ASC`, formationColumns)
	var formations []models.FormationDetail
	if err := r.db.SelectContext(ctx, &formations, query, models.FormationStatusPending); err != nil {
		return nil, fmt.Errorf("list pending formations: %w", err)
	}
	return formations, nil
}

// FindByID returns a formation by its ID.
func (r *FormationRepository) FindByID(ctx context.Context, id string) (*models.Formation, error) {
	query := fmt.Sprintf(`SELECT %s FROM formations f WHERE f.id = $1`, formationColumns)
	var formation models.Formation
	if err := r.db.GetContext(ctx, &formation, query, id); err != nil {
		return nil, err
	}
	return &formation, nil
}

// Create persists a new formation record.
func (r *FormationRepository) Create(ctx context.Context, formation *models.Formation) error {
	if formation.ID == "" {
		formation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	formation.CreatedAt = now
	formation.UpdatedAt = now
	if formation.Statut == "" {
		formation.Statut = models.FormationStatusPending
	}
	formation.Version = 1

	const query = `INSERT INTO formations (id, titre, description, date_debut, date_fin, duree, niveau, prix,
        places_disponibles, statut, formateur_id, ville_id, filiere_id, created_by, version, created_at, updated_at)
        VALUES (:id, :titre, :description, :date_debut, :date_fin, :duree, :niveau, :prix,
        :places_disponibles, :statut, :formateur_id, :ville_id, :filiere_id, :created_by, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, formation); err != nil {
		return fmt.Errorf("create formation: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields using compare-and-swap on version.
func (r *FormationRepository) Update(ctx context.Context, formation *models.Formation) error {
	const query = `UPDATE formations SET titre = :titre, description = :description, date_debut = :date_debut,
        date_fin = :date_fin, duree = :duree, niveau = :niveau, prix = :prix,
        places_disponibles = :places_disponibles, formateur_id = :formateur_id, ville_id = :ville_id,
        filiere_id = :filiere_id, version = :version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	formation.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, formation)
	if err != nil {
		return fmt.Errorf("update formation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update formation rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	formation.Version++
	return nil
}

// UpdateStatus moves a formation along the operational axis with CAS.
func (r *FormationRepository) UpdateStatus(ctx context.Context, id string, version int, status models.FormationStatus) error {
	const query = `UPDATE formations SET statut = $3, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2`
	res, err := r.db.ExecContext(ctx, query, id, version, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update formation status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update formation status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Validate marks a formation validated and appends the audit record in one
// transaction. The status column stays the single source of truth; the audit
// row is write-only.
func (r *FormationRepository) Validate(ctx context.Context, id string, version int, validatorID, comment string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin validate formation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const update = `UPDATE formations SET statut = $3, validated_by = $4, validated_at = $5,
        version = version + 1, updated_at = $5
        WHERE id = $1 AND version = $2`
	res, err := tx.ExecContext(ctx, update, id, version, models.FormationStatusValidated, validatorID, now)
	if err != nil {
		return fmt.Errorf("validate formation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("validate formation rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}

	const insert = `INSERT INTO formation_validations (id, formation_id, validator_id, comment, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), id, validatorID, comment, now); err != nil {
		return fmt.Errorf("insert validation record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit validate formation: %w", err)
	}
	return nil
}

// Reject marks a formation rejected with a reason, CAS on version.
func (r *FormationRepository) Reject(ctx context.Context, id string, version int, validatorID, reason string) error {
	const query = `UPDATE formations SET statut = $3, validated_by = $4, rejection_reason = $5,
        version = version + 1, updated_at = $6
        WHERE id = $1 AND version = $2`
	res, err := r.db.ExecContext(ctx, query, id, version, models.FormationStatusRejected, validatorID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reject formation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject formation rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	return nil
}

// Delete removes a formation and everything it owns: enrollments, absences,
// and validation records go in the same transaction so no orphans remain.
func (r *FormationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete formation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM absences WHERE formation_id = $1`, id); err != nil {
		return fmt.Errorf("delete formation absences: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE formation_id = $1`, id); err != nil {
		return fmt.Errorf("delete formation enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM formation_validations WHERE formation_id = $1`, id); err != nil {
		return fmt.Errorf("delete formation validations: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM formations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete formation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete formation rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete formation: %w", err)
	}
	return nil
}
