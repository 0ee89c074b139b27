package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
	"github.com/noah-isme/assignx-api/pkg/response"
)

type blacklistService interface {
	Add(ctx context.Context, actor service.Actor, req dto.BlacklistRequest) (*models.BlacklistEntry, error)
	Remove(ctx context.Context, actor service.Actor, doerID string) error
	List(ctx context.Context, actor service.Actor) ([]models.BlacklistEntry, error)
}

// BlacklistHandler manages a supervisor's barred doers.
type BlacklistHandler struct {
	service blacklistService
}

// NewBlacklistHandler constructs the handler.
func NewBlacklistHandler(svc blacklistService) *BlacklistHandler {
	return &BlacklistHandler{service: svc}
}

// List godoc
// @Summary List blacklisted doers
// @Tags Supervisor
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /supervisor/blacklist [get]
func (h *BlacklistHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entries, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Add godoc
// @Summary Blacklist a doer
// @Tags Supervisor
// @Accept json
// @Produce json
// @Param payload body dto.BlacklistRequest true "Doer and reason"
// @Success 201 {object} response.Envelope
// @Router /supervisor/blacklist [post]
func (h *BlacklistHandler) Add(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BlacklistRequest
	if !bindJSON(c, &req, "invalid blacklist payload") {
		return
	}
	entry, err := h.service.Add(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Remove godoc
// @Summary Lift a doer blacklist entry
// @Tags Supervisor
// @Param doerId path string true "Doer ID"
// @Success 204
// @Router /supervisor/blacklist/{doerId} [delete]
func (h *BlacklistHandler) Remove(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), actor, strings.TrimSpace(c.Param("doerId"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
