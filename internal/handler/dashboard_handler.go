package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/middleware"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

type dashboardService interface {
	Supervisor(ctx context.Context, actor service.Actor) (*dto.SupervisorDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Supervisor godoc
// @Summary Supervisor workload and earnings summary
// @Tags Supervisor
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /supervisor/dashboard [get]
func (h *DashboardHandler) Supervisor(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Supervisor(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["cache_hit"] = cacheHit
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}
