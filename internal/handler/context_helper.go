package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/middleware"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves the caller or writes the error response.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	actor, err := service.ActorFromClaims(claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return service.Actor{}, false
	}
	return actor, true
}

// bindJSON decodes the body or writes a validation error.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func projectID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}
