package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehdifatimi/formation-api/internal/models"
)

func newRoleRepoMock(t *testing.T) (*RoleRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewRoleRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func TestRoleRepositoryListRolesAttachesPermissions(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	roleRows := sqlmock.NewRows([]string{"id", "name", "slug", "created_at"}).
		AddRow("r-admin", "Administrateur", "admin", createdAt).
		AddRow("r-cdc", "Chef de centre", "cdc", createdAt)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, slug, created_at FROM roles ORDER BY slug`)).
		WillReturnRows(roleRows)

	permRows := sqlmock.NewRows([]string{"role_id", "id", "name", "slug"}).
		AddRow("r-cdc", "perm-1", "Validate formations", "validate-formations").
		AddRow("r-cdc", "perm-2", "Reject formations", "reject-formations")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM role_permissions rp`)).
		WillReturnRows(permRows)

	roles, err := repo.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, models.RoleSlug("admin"), roles[0].Slug)
	assert.Empty(t, roles[0].Permissions)
	require.Len(t, roles[1].Permissions, 2)
	assert.Equal(t, models.PermissionSlug("validate-formations"), roles[1].Permissions[0].Slug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryFindRoleBySlugMissing(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, slug, created_at FROM roles WHERE slug = $1`)).
		WithArgs(models.RoleSlug("superviseur")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindRoleBySlug(context.Background(), "superviseur")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryGetUserPermissions(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"slug"}).
		AddRow("reject-formations").
		AddRow("validate-formations").
		AddRow("view-reports")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT p.slug`)).
		WithArgs("user-1").
		WillReturnRows(rows)

	perms, err := repo.GetUserPermissions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []models.PermissionSlug{"reject-formations", "validate-formations", "view-reports"}, perms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryAssignRoleIsIdempotent(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, role_id) DO NOTHING`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "r-cdc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id, role_id) DO NOTHING`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "r-cdc").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AssignRole(context.Background(), "user-1", "r-cdc"))
	require.NoError(t, repo.AssignRole(context.Background(), "user-1", "r-cdc"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositorySyncRolesReplacesMemberships(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_roles WHERE user_id = $1`)).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "r-cdc").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_roles (id, user_id, role_id) VALUES ($1, $2, $3)`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "r-drf").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SyncRoles(context.Background(), "user-1", []string{"r-cdc", "r-drf"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositorySyncRolesEmptySetClearsAll(t *testing.T) {
	repo, mock, cleanup := newRoleRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_roles WHERE user_id = $1`)).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.SyncRoles(context.Background(), "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
