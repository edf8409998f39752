package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mehdifatimi/formation-api/internal/models"
)

func performRequest(t *testing.T, claims *models.JWTClaims, guard gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/formations/pending-validations", nil)
	c.Request = req
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	guard(c)
	if !c.IsAborted() {
		c.Status(http.StatusOK)
	}
	return w
}

func TestRequirePermissionAllowsHolder(t *testing.T) {
	claims := &models.JWTClaims{
		UserID:      "cdc-1",
		Roles:       []models.RoleSlug{models.RoleCDC},
		Permissions: []models.PermissionSlug{models.PermValidateFormations},
	}
	w := performRequest(t, claims, RequirePermission(models.PermValidateFormations))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionDeniesMissingSlug(t *testing.T) {
	claims := &models.JWTClaims{
		UserID: "formateur-1",
		Roles:  []models.RoleSlug{models.RoleFormateur},
	}
	w := performRequest(t, claims, RequirePermission(models.PermValidateFormations))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "missing permission: validate-formations")
}

func TestRequirePermissionAdminBypass(t *testing.T) {
	claims := &models.JWTClaims{
		UserID: "admin-1",
		Roles:  []models.RoleSlug{models.RoleAdmin},
	}
	w := performRequest(t, claims, RequirePermission(models.PermAssignRoles))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionWithoutClaims(t *testing.T) {
	w := performRequest(t, nil, RequirePermission(models.PermValidateFormations))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesAnyMatch(t *testing.T) {
	claims := &models.JWTClaims{
		UserID: "drf-1",
		Roles:  []models.RoleSlug{models.RoleDRF},
	}
	w := performRequest(t, claims, RequireRoles(models.RoleAdmin, models.RoleCDC, models.RoleDRF))
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(t, claims, RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
