package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/demandes-api/internal/middleware"
	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/response"
)

// actorFromContext resolves the authenticated caller, writing a 401 when the
// JWT middleware did not run.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
