package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/pkg/response"
)

type paymentService interface {
	ConfirmPayment(ctx context.Context, req dto.PaymentConfirmation) (*models.Project, error)
}

// PaymentHandler receives provider callbacks.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Confirm godoc
// @Summary Payment provider confirmation webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string true "Shared secret"
// @Param payload body dto.PaymentConfirmation true "Confirmation"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /payments/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req dto.PaymentConfirmation
	if !bindJSON(c, &req, "invalid payment confirmation") {
		return
	}
	project, err := h.service.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"projectId": project.ID,
		"status":    project.Status,
		"reference": req.Reference,
	}, nil)
}
