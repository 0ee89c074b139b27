package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
)

type qualityService interface {
	StartReview(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	RecordScores(ctx context.Context, actor service.Actor, projectID string, req dto.QCScoresRequest) (*models.Project, error)
	Approve(ctx context.Context, actor service.Actor, projectID string, req dto.QCApproveRequest) (*models.Project, error)
	Reject(ctx context.Context, actor service.Actor, projectID string, req dto.QCRejectRequest) (*models.Project, error)
	Resume(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
}

// QualityHandler exposes the quality gate to supervisors.
type QualityHandler struct {
	service qualityService
}

// NewQualityHandler constructs the handler.
func NewQualityHandler(svc qualityService) *QualityHandler {
	return &QualityHandler{service: svc}
}

// Start godoc
// @Summary Open a quality review
// @Tags Quality
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/qc/start [post]
func (h *QualityHandler) Start(c *gin.Context) { runTransition(c, h.service.StartReview) }

// Scores godoc
// @Summary Record plagiarism and AI detection scores
// @Tags Quality
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.QCScoresRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/qc/scores [post]
func (h *QualityHandler) Scores(c *gin.Context) {
	var req dto.QCScoresRequest
	if !bindJSON(c, &req, "invalid scores payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.RecordScores(ctx, actor, id, req)
	})
}

// Approve godoc
// @Summary Pass quality review and deliver
// @Tags Quality
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.QCApproveRequest false "Notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/qc/approve [post]
func (h *QualityHandler) Approve(c *gin.Context) {
	var req dto.QCApproveRequest
	if !bindOptionalJSON(c, &req, "invalid approval payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.Approve(ctx, actor, id, req)
	})
}

// Reject godoc
// @Summary Fail quality review and request a revision
// @Tags Quality
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.QCRejectRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/qc/reject [post]
func (h *QualityHandler) Reject(c *gin.Context) {
	var req dto.QCRejectRequest
	if !bindOptionalJSON(c, &req, "invalid rejection payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.Reject(ctx, actor, id, req)
	})
}

// Resume godoc
// @Summary Move a project stuck in a quality decision status onward
// @Tags Admin
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/projects/{id}/qc/resume [post]
func (h *QualityHandler) Resume(c *gin.Context) { runTransition(c, h.service.Resume) }
