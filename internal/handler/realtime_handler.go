package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

type notificationStream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// RealtimeHandler streams status notifications over websockets.
type RealtimeHandler struct {
	hub    notificationStream
	logger *zap.Logger
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(hub notificationStream, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{hub: hub, logger: logger}
}

// Notifications godoc
// @Summary Subscribe to project status notifications
// @Tags Notifications
// @Param token query string true "Access token"
// @Success 101
// @Router /ws/notifications [get]
func (h *RealtimeHandler) Notifications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, claims.UserID); err != nil {
		// the upgrader already wrote the handshake failure
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}
