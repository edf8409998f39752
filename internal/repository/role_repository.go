package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mehdifatimi/formation-api/internal/models"
)

// RoleRepository handles persistence of roles, permissions, and user role
// memberships.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository constructs the repository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// ListRoles returns all roles with their permissions attached.
func (r *RoleRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	const rolesQuery = `SELECT id, name, slug, created_at FROM roles ORDER BY slug`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, rolesQuery); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	const permsQuery = `SELECT rp.role_id, p.id, p.name, p.slug
        FROM role_permissions rp
        JOIN permissions p ON p.id = rp.permission_id`
	rows, err := r.db.QueryxContext(ctx, permsQuery)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	byRole := make(map[string][]models.Permission)
	for rows.Next() {
		var roleID string
		var perm models.Permission
		if err := rows.Scan(&roleID, &perm.ID, &perm.Name, &perm.Slug); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		byRole[roleID] = append(byRole[roleID], perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}

	for i := range roles {
		roles[i].Permissions = byRole[roles[i].ID]
	}
	return roles, nil
}

// FindRoleBySlug returns a role by its slug.
func (r *RoleRepository) FindRoleBySlug(ctx context.Context, slug models.RoleSlug) (*models.Role, error) {
	const query = `SELECT id, name, slug, created_at FROM roles WHERE slug = $1 LIMIT 1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, slug); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by slug: %w", err)
	}
	return &role, nil
}

// GetUserRoles returns the roles directly assigned to a user.
func (r *RoleRepository) GetUserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	const query = `SELECT ro.id, ro.name, ro.slug, ro.created_at
        FROM user_roles ur
        JOIN roles ro ON ro.id = ur.role_id
        WHERE ur.user_id = $1
        ORDER BY ro.slug`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}
	return roles, nil
}

// GetUserPermissions resolves the union of permission slugs across every role
// the user holds.
func (r *RoleRepository) GetUserPermissions(ctx context.Context, userID string) ([]models.PermissionSlug, error) {
	const query = `SELECT DISTINCT p.slug
        FROM user_roles ur
        JOIN role_permissions rp ON rp.role_id = ur.role_id
        JOIN permissions p ON p.id = rp.permission_id
        WHERE ur.user_id = $1
        ORDER BY p.slug`
	var slugs []models.PermissionSlug
	if err := r.db.SelectContext(ctx, &slugs, query, userID); err != nil {
		return nil, fmt.Errorf("get user permissions: %w", err)
	}
	return slugs, nil
}

// AssignRole binds a role to a user. Assigning an already-held role is a
// no-op.
func (r *RoleRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	const query = `INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, role_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// RemoveRole unbinds a role from a user. Removing an unheld role is a no-op.
func (r *RoleRepository) RemoveRole(ctx context.Context, userID, roleID string) error {
	const query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

// SyncRoles replaces the user's membership set with exactly the given role
// IDs in one transaction.
func (r *RoleRepository) SyncRoles(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync roles: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	const insert = `INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)`
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), userID, roleID); err != nil {
			return fmt.Errorf("insert user role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync roles: %w", err)
	}
	return nil
}
