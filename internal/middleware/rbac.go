package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

// RequireRoles rejects callers whose role is not listed. Routes whose
// permission depends on the request's status leave the check to the engine.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Staff lists every role except REQUESTER.
var Staff = []models.UserRole{
	models.RoleFieldAuthority,
	models.RoleGeneralDirectorate,
	models.RoleAdvisoryBoardMember,
	models.RoleMinister,
	models.RoleAdministrator,
}
