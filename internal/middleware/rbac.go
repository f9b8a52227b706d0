package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grade-flow-api/internal/models"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
	"github.com/noah-isme/grade-flow-api/pkg/response"
)

// RequireRoles blocks requests whose actor lacks one of the allowed roles.
// Route-level gating only; the services re-check the permission matrix on
// every mutation.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
