package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/pkg/config"
	"github.com/mehdifatimi/formation-api/pkg/database"
)

// Provision seeds the RBAC tables and the bootstrap admin account. Every step
// is idempotent so the binary can run on each deploy.

var permissionNames = map[models.PermissionSlug]string{
	models.PermValidateFormations: "Validate formations",
	models.PermRejectFormations:   "Reject formations",
	models.PermAssignRoles:        "Assign roles",
	models.PermManageFormations:   "Manage formations",
	models.PermManageParticipants: "Manage participants",
	models.PermManageAbsences:     "Manage absences",
	models.PermViewReports:        "View reports",
}

var rolePermissions = map[models.RoleSlug][]models.PermissionSlug{
	models.RoleAdmin: models.AllPermissions,
	models.RoleCDC: {
		models.PermValidateFormations,
		models.PermRejectFormations,
		models.PermManageFormations,
		models.PermViewReports,
	},
	models.RoleDRF: {
		models.PermValidateFormations,
		models.PermRejectFormations,
		models.PermViewReports,
	},
	models.RoleDR: {
		models.PermViewReports,
	},
	models.RoleFormateur: {
		models.PermManageAbsences,
		models.PermManageParticipants,
	},
}

var roleNames = map[models.RoleSlug]string{
	models.RoleAdmin:     "Administrateur",
	models.RoleCDC:       "Chef de centre",
	models.RoleDRF:       "Directeur régional de formation",
	models.RoleDR:        "Directeur régional",
	models.RoleFormateur: "Formateur",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	permIDs, err := seedPermissions(ctx, db)
	if err != nil {
		log.Fatalf("failed to seed permissions: %v", err)
	}

	roleIDs, err := seedRoles(ctx, db, permIDs)
	if err != nil {
		log.Fatalf("failed to seed roles: %v", err)
	}

	if err := seedAdmin(ctx, db, roleIDs[models.RoleAdmin]); err != nil {
		log.Fatalf("failed to seed admin account: %v", err)
	}

	fmt.Println("provisioning complete")
}

func seedPermissions(ctx context.Context, db *sqlx.DB) (map[models.PermissionSlug]string, error) {
	ids := make(map[models.PermissionSlug]string, len(permissionNames))
	for slug, name := range permissionNames {
		var id string
		err := db.GetContext(ctx, &id, `SELECT id FROM permissions WHERE slug = $1`, slug)
		if errors.Is(err, sql.ErrNoRows) {
			id = uuid.NewString()
			if _, err := db.ExecContext(ctx,
				`INSERT INTO permissions (id, name, slug) VALUES ($1, $2, $3)`,
				id, name, slug); err != nil {
				return nil, fmt.Errorf("insert permission %s: %w", slug, err)
			}
			fmt.Println("seeded permission:", slug)
		} else if err != nil {
			return nil, fmt.Errorf("lookup permission %s: %w", slug, err)
		}
		ids[slug] = id
	}
	return ids, nil
}

func seedRoles(ctx context.Context, db *sqlx.DB, permIDs map[models.PermissionSlug]string) (map[models.RoleSlug]string, error) {
	ids := make(map[models.RoleSlug]string, len(roleNames))
	for slug, name := range roleNames {
		var id string
		err := db.GetContext(ctx, &id, `SELECT id FROM roles WHERE slug = $1`, slug)
		if errors.Is(err, sql.ErrNoRows) {
			id = uuid.NewString()
			if _, err := db.ExecContext(ctx,
				`INSERT INTO roles (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
				id, name, slug, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("insert role %s: %w", slug, err)
			}
			fmt.Println("seeded role:", slug)
		} else if err != nil {
			return nil, fmt.Errorf("lookup role %s: %w", slug, err)
		}
		ids[slug] = id

		for _, perm := range rolePermissions[slug] {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
                 ON CONFLICT (role_id, permission_id) DO NOTHING`,
				id, permIDs[perm]); err != nil {
				return nil, fmt.Errorf("grant %s to %s: %w", perm, slug, err)
			}
		}
	}
	return ids, nil
}

func seedAdmin(ctx context.Context, db *sqlx.DB, adminRoleID string) error {
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@formation.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "changeme"
	}

	var userID string
	err := db.GetContext(ctx, &userID, `SELECT id FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		userID = uuid.NewString()
		now := time.Now().UTC()
		if _, err := db.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)`,
			userID, email, string(hash), "Administrateur", models.RoleAdmin, now); err != nil {
			return fmt.Errorf("insert admin user: %w", err)
		}
		fmt.Println("seeded admin account:", email)
	} else if err != nil {
		return fmt.Errorf("lookup admin user: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)
         ON CONFLICT (user_id, role_id) DO NOTHING`,
		uuid.NewString(), userID, adminRoleID); err != nil {
		return fmt.Errorf("grant admin role: %w", err)
	}
	return nil
}
