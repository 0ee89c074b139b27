package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/noah-isme/assignx-api/internal/models"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

// RequireRoles admits callers whose token carries one of roles. Admins are
// always admitted. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(ContextUserKey)
		claims, ok := v.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == models.RoleAdmin || lo.Contains(roles, claims.Role) {
			c.Next()
			return
		}
		response.Error(c, appErrors.WithDetails(appErrors.ErrForbidden, map[string]any{
			"role":    claims.Role,
			"allowed": roles,
		}))
		c.Abort()
	}
}
