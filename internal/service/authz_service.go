package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
)

type roleRepository interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	FindRoleBySlug(ctx context.Context, slug models.RoleSlug) (*models.Role, error)
	GetUserRoles(ctx context.Context, userID string) ([]models.Role, error)
	GetUserPermissions(ctx context.Context, userID string) ([]models.PermissionSlug, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	SyncRoles(ctx context.Context, userID string, roleIDs []string) error
}

type permissionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SyncRolesRequest carries the full replacement membership set.
type SyncRolesRequest struct {
	Roles []models.RoleSlug `json:"roles" validate:"required"`
}

// AuthzService answers permission and role questions and manages role
// memberships. Checks fail closed: any resolution error denies.
type AuthzService struct {
	roles  roleRepository
	cache  permissionCache
	audit  auditWriter
	logger *zap.Logger
	ttl    time.Duration
}

// NewAuthzService constructs an AuthzService.
func NewAuthzService(roles roleRepository, cache permissionCache, audit auditWriter, logger *zap.Logger, cacheTTL time.Duration) *AuthzService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AuthzService{roles: roles, cache: cache, audit: audit, logger: logger, ttl: cacheTTL}
}

func permissionCacheKey(userID string) string {
	return fmt.Sprintf("authz:permissions:%s", userID)
}

// PermissionsFor resolves the union of permissions across all roles held by
// the user. The set is cached per user and invalidated on role mutations.
func (s *AuthzService) PermissionsFor(ctx context.Context, userID string) (models.PermissionSet, error) {
	if s.cache != nil {
		var cached []models.PermissionSlug
		if err := s.cache.Get(ctx, permissionCacheKey(userID), &cached); err == nil {
			return models.NewPermissionSet(cached...), nil
		}
	}

	slugs, err := s.roles.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve permissions")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, permissionCacheKey(userID), slugs, s.ttl); err != nil {
			s.logger.Warn("failed to cache permission set", zap.Error(err))
		}
	}

	return models.NewPermissionSet(slugs...), nil
}

// RolesFor returns the role slugs directly held by the user.
func (s *AuthzService) RolesFor(ctx context.Context, userID string) ([]models.RoleSlug, error) {
	roles, err := s.roles.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roles")
	}
	slugs := make([]models.RoleSlug, 0, len(roles))
	for _, role := range roles {
		slugs = append(slugs, role.Slug)
	}
	return slugs, nil
}

// HasPermission returns true iff the permission is in the union of the
// user's role permissions. Unresolvable users deny.
func (s *AuthzService) HasPermission(ctx context.Context, userID string, perm models.PermissionSlug) bool {
	if userID == "" {
		return false
	}
	set, err := s.PermissionsFor(ctx, userID)
	if err != nil {
		s.logger.Warn("permission resolution failed, denying", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return set.Has(perm)
}

// HasRole checks direct role membership only; there is no role hierarchy.
func (s *AuthzService) HasRole(ctx context.Context, userID string, slug models.RoleSlug) bool {
	if userID == "" {
		return false
	}
	roles, err := s.roles.GetUserRoles(ctx, userID)
	if err != nil {
		s.logger.Warn("role resolution failed, denying", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	for _, role := range roles {
		if role.Slug == slug {
			return true
		}
	}
	return false
}

// ListRoles returns all roles with their permission sets.
func (s *AuthzService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// AssignRole binds the role to the user. Assigning an already-held role is a
// no-op. The actor must hold assign-roles.
func (s *AuthzService) AssignRole(ctx context.Context, actor *models.JWTClaims, userID string, slug models.RoleSlug) error {
	if err := s.requireAssignRoles(ctx, actor); err != nil {
		return err
	}

	role, err := s.roles.FindRoleBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", slug))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}

	if err := s.roles.AssignRole(ctx, userID, role.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}

	s.invalidate(ctx, userID)
	s.recordAudit(ctx, actor, models.AuditActionRoleAssign, userID, map[string]interface{}{"role": slug})
	return nil
}

// RemoveRole unbinds the role from the user. Removing an unheld role is a
// no-op.
func (s *AuthzService) RemoveRole(ctx context.Context, actor *models.JWTClaims, userID string, slug models.RoleSlug) error {
	if err := s.requireAssignRoles(ctx, actor); err != nil {
		return err
	}

	role, err := s.roles.FindRoleBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", slug))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}

	if err := s.roles.RemoveRole(ctx, userID, role.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove role")
	}

	s.invalidate(ctx, userID)
	s.recordAudit(ctx, actor, models.AuditActionRoleRemove, userID, map[string]interface{}{"role": slug})
	return nil
}

// SyncRoles replaces the user's membership set with exactly the given roles.
// Calling it twice with the same list yields the same membership set.
func (s *AuthzService) SyncRoles(ctx context.Context, actor *models.JWTClaims, userID string, slugs []models.RoleSlug) error {
	if err := s.requireAssignRoles(ctx, actor); err != nil {
		return err
	}

	seen := make(map[models.RoleSlug]struct{}, len(slugs))
	roleIDs := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		role, err := s.roles.FindRoleBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", slug))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
		}
		roleIDs = append(roleIDs, role.ID)
	}

	if err := s.roles.SyncRoles(ctx, userID, roleIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync roles")
	}

	s.invalidate(ctx, userID)
	s.recordAudit(ctx, actor, models.AuditActionRoleSync, userID, map[string]interface{}{"roles": slugs})
	return nil
}

func (s *AuthzService) requireAssignRoles(ctx context.Context, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !s.HasPermission(ctx, actor.UserID, models.PermAssignRoles) {
		return appErrors.Clone(appErrors.ErrForbidden, "assign-roles permission required")
	}
	return nil
}

func (s *AuthzService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, permissionCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate permission cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *AuthzService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, targetID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "roles",
		ResourceID: &targetID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record role audit log", zap.Error(err))
	}
}
