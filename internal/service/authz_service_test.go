package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type fakeRoleRepo struct {
	roles     map[models.RoleSlug]models.Role
	rolePerms map[models.RoleSlug][]models.PermissionSlug
	userRoles map[string][]models.RoleSlug
	permsErr  error
	syncCalls int
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles: map[models.RoleSlug]models.Role{
			models.RoleAdmin:     {ID: "r-admin", Slug: models.RoleAdmin},
			models.RoleCDC:       {ID: "r-cdc", Slug: models.RoleCDC},
			models.RoleDRF:       {ID: "r-drf", Slug: models.RoleDRF},
			models.RoleFormateur: {ID: "r-formateur", Slug: models.RoleFormateur},
		},
		rolePerms: map[models.RoleSlug][]models.PermissionSlug{
			models.RoleAdmin:     models.AllPermissions,
			models.RoleCDC:       {models.PermValidateFormations, models.PermManageFormations},
			models.RoleDRF:       {models.PermValidateFormations, models.PermRejectFormations},
			models.RoleFormateur: {models.PermManageAbsences},
		},
		userRoles: make(map[string][]models.RoleSlug),
	}
}

func (f *fakeRoleRepo) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	for _, r := range f.roles {
		roles = append(roles, r)
	}
	return roles, nil
}

func (f *fakeRoleRepo) FindRoleBySlug(ctx context.Context, slug models.RoleSlug) (*models.Role, error) {
	if role, ok := f.roles[slug]; ok {
		return &role, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRoleRepo) GetUserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	var roles []models.Role
	for _, slug := range f.userRoles[userID] {
		roles = append(roles, f.roles[slug])
	}
	return roles, nil
}

func (f *fakeRoleRepo) GetUserPermissions(ctx context.Context, userID string) ([]models.PermissionSlug, error) {
	if f.permsErr != nil {
		return nil, f.permsErr
	}
	seen := make(map[models.PermissionSlug]struct{})
	var perms []models.PermissionSlug
	for _, slug := range f.userRoles[userID] {
		for _, p := range f.rolePerms[slug] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func (f *fakeRoleRepo) roleSlugByID(id string) models.RoleSlug {
	for slug, role := range f.roles {
		if role.ID == id {
			return slug
		}
	}
	return ""
}

func (f *fakeRoleRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	slug := f.roleSlugByID(roleID)
	for _, held := range f.userRoles[userID] {
		if held == slug {
			return nil
		}
	}
	f.userRoles[userID] = append(f.userRoles[userID], slug)
	return nil
}

func (f *fakeRoleRepo) RemoveRole(ctx context.Context, userID, roleID string) error {
	slug := f.roleSlugByID(roleID)
	kept := f.userRoles[userID][:0]
	for _, held := range f.userRoles[userID] {
		if held != slug {
			kept = append(kept, held)
		}
	}
	f.userRoles[userID] = kept
	return nil
}

func (f *fakeRoleRepo) SyncRoles(ctx context.Context, userID string, roleIDs []string) error {
	f.syncCalls++
	var slugs []models.RoleSlug
	for _, id := range roleIDs {
		slugs = append(slugs, f.roleSlugByID(id))
	}
	f.userRoles[userID] = slugs
	return nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
		}
	}
	return nil
}

type fakeAuditWriter struct {
	logs []models.AuditLog
}

func (f *fakeAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      "admin-1",
		Roles:       []models.RoleSlug{models.RoleAdmin},
		Permissions: models.AllPermissions,
	}
}

func TestAuthzServicePermissionUnion(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["u1"] = []models.RoleSlug{models.RoleCDC, models.RoleDRF}
	svc := NewAuthzService(repo, nil, nil, zap.NewNop(), time.Minute)

	set, err := svc.PermissionsFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, set.Has(models.PermValidateFormations))
	assert.True(t, set.Has(models.PermRejectFormations))
	assert.True(t, set.Has(models.PermManageFormations))
	assert.False(t, set.Has(models.PermAssignRoles))
}

func TestAuthzServiceHasPermissionFailsClosed(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["u1"] = []models.RoleSlug{models.RoleCDC}
	repo.permsErr = errors.New("connection refused")
	svc := NewAuthzService(repo, nil, nil, zap.NewNop(), time.Minute)

	assert.False(t, svc.HasPermission(context.Background(), "u1", models.PermValidateFormations))
	assert.False(t, svc.HasPermission(context.Background(), "", models.PermValidateFormations))
}

func TestAuthzServiceAssignRoleRequiresPermission(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["u2"] = []models.RoleSlug{models.RoleFormateur}
	svc := NewAuthzService(repo, nil, nil, zap.NewNop(), time.Minute)

	actor := &models.JWTClaims{UserID: "u2"}
	err := svc.AssignRole(context.Background(), actor, "u3", models.RoleCDC)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	err = svc.AssignRole(context.Background(), nil, "u3", models.RoleCDC)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthzServiceAssignRoleUnknownRole(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["admin-1"] = []models.RoleSlug{models.RoleAdmin}
	svc := NewAuthzService(repo, nil, nil, zap.NewNop(), time.Minute)

	err := svc.AssignRole(context.Background(), adminClaims(), "u3", "superviseur")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
}

func TestAuthzServiceAssignRoleIdempotent(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["admin-1"] = []models.RoleSlug{models.RoleAdmin}
	audit := &fakeAuditWriter{}
	svc := NewAuthzService(repo, nil, audit, zap.NewNop(), time.Minute)

	require.NoError(t, svc.AssignRole(context.Background(), adminClaims(), "u3", models.RoleCDC))
	require.NoError(t, svc.AssignRole(context.Background(), adminClaims(), "u3", models.RoleCDC))
	assert.Equal(t, []models.RoleSlug{models.RoleCDC}, repo.userRoles["u3"])
	assert.Len(t, audit.logs, 2)
}

func TestAuthzServiceSyncRolesReplacesMembership(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["admin-1"] = []models.RoleSlug{models.RoleAdmin}
	repo.userRoles["u4"] = []models.RoleSlug{models.RoleFormateur}
	svc := NewAuthzService(repo, nil, nil, zap.NewNop(), time.Minute)

	target := []models.RoleSlug{models.RoleCDC, models.RoleDRF, models.RoleCDC}
	require.NoError(t, svc.SyncRoles(context.Background(), adminClaims(), "u4", target))
	assert.Equal(t, []models.RoleSlug{models.RoleCDC, models.RoleDRF}, repo.userRoles["u4"])

	require.NoError(t, svc.SyncRoles(context.Background(), adminClaims(), "u4", target))
	assert.Equal(t, []models.RoleSlug{models.RoleCDC, models.RoleDRF}, repo.userRoles["u4"])
	assert.Equal(t, 2, repo.syncCalls)
}

func TestAuthzServiceCacheInvalidationOnMutation(t *testing.T) {
	repo := newFakeRoleRepo()
	repo.userRoles["admin-1"] = []models.RoleSlug{models.RoleAdmin}
	repo.userRoles["u5"] = []models.RoleSlug{models.RoleFormateur}
	cache := newFakeCache()
	svc := NewAuthzService(repo, cache, nil, zap.NewNop(), time.Minute)

	set, err := svc.PermissionsFor(context.Background(), "u5")
	require.NoError(t, err)
	assert.False(t, set.Has(models.PermValidateFormations))
	assert.Contains(t, cache.entries, permissionCacheKey("u5"))

	require.NoError(t, svc.AssignRole(context.Background(), adminClaims(), "u5", models.RoleCDC))
	assert.NotContains(t, cache.entries, permissionCacheKey("u5"))

	set, err = svc.PermissionsFor(context.Background(), "u5")
	require.NoError(t, err)
	assert.True(t, set.Has(models.PermValidateFormations))
}
