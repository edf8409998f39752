package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/service"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
	"github.com/mehdifatimi/formation-api/pkg/response"
)

// UserHandler exposes user listing and role management endpoints.
type UserHandler struct {
	users *service.UserService
	authz *service.AuthzService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users *service.UserService, authz *service.AuthzService) *UserHandler {
	return &UserHandler{users: users, authz: authz}
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param search query string false "Search by email or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var filter models.UserFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Role = c.Query("role")
	if active := c.Query("active"); active == "true" || active == "false" {
		v := active == "true"
		filter.Active = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	users, pagination, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user with role memberships
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ListRoles godoc
// @Summary List roles with permissions
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.authz.ListRoles(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// AssignRole godoc
// @Summary Assign role to user
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body object true "Role slug"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /users/{id}/roles [post]
func (h *UserHandler) AssignRole(c *gin.Context) {
	var payload struct {
		Role models.RoleSlug `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "role required"))
		return
	}

	if err := h.authz.AssignRole(c.Request.Context(), claimsFromContext(c), c.Param("id"), payload.Role); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveRole godoc
// @Summary Remove role from user
// @Tags Roles
// @Produce json
// @Param id path string true "User ID"
// @Param role path string true "Role slug"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/roles/{role} [delete]
func (h *UserHandler) RemoveRole(c *gin.Context) {
	role := models.RoleSlug(c.Param("role"))
	if err := h.authz.RemoveRole(c.Request.Context(), claimsFromContext(c), c.Param("id"), role); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SyncRoles godoc
// @Summary Replace user role memberships
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.SyncRolesRequest true "Full role list"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /users/{id}/roles [put]
func (h *UserHandler) SyncRoles(c *gin.Context) {
	var req service.SyncRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "roles required"))
		return
	}

	userID := c.Param("id")
	if err := h.authz.SyncRoles(c.Request.Context(), claimsFromContext(c), userID, req.Roles); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}
