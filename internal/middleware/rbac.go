package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mehdifatimi/formation-api/internal/models"
	appErrors "github.com/mehdifatimi/formation-api/pkg/errors"
	"github.com/mehdifatimi/formation-api/pkg/response"
)

// RequirePermission gates a route on a capability slug. The check is set
// membership over the claims; admins pass implicitly because the seed grants
// the admin role every permission.
func RequirePermission(perm models.PermissionSlug) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !claims.PermissionSet().Has(perm) && !claims.HasRole(models.RoleAdmin) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission: "+string(perm)))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles allows the request when the user holds any of the listed
// roles.
func RequireRoles(roles ...models.RoleSlug) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
