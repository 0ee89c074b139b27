package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type projectService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateProjectRequest) (*models.Project, error)
	Get(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	List(ctx context.Context, actor service.Actor, query dto.ProjectQuery) ([]models.Project, error)
	History(ctx context.Context, actor service.Actor, projectID string) (*dto.ProjectHistoryResponse, error)
	Submit(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	StartAnalysis(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	Quote(ctx context.Context, actor service.Actor, projectID string, req dto.QuoteRequest) (*models.Project, error)
	RequestPayment(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	StartAssigning(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	AssignDoer(ctx context.Context, actor service.Actor, projectID string, req dto.AssignDoerRequest) (*models.Project, error)
	AcceptAssignment(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	DeclineAssignment(ctx context.Context, actor service.Actor, projectID, reason string) (*models.Project, error)
	StartWork(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	StartRevision(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)
	ApproveDelivery(ctx context.Context, actor service.Actor, projectID string, req dto.ApproveDeliveryRequest) (*models.Project, error)
	RequestRevision(ctx context.Context, actor service.Actor, projectID, reason string) (*models.Project, error)
	Cancel(ctx context.Context, actor service.Actor, projectID, reason string) (*models.Project, error)
	Refund(ctx context.Context, actor service.Actor, projectID, reason string) (*models.Project, error)
	ExtendDeadline(ctx context.Context, actor service.Actor, projectID string, req dto.ExtendDeadlineRequest) (*models.Project, error)
	OverrideSettlement(ctx context.Context, actor service.Actor, projectID string, req dto.OverrideSettlementRequest) (*models.Project, error)
}

// ProjectHandler exposes the project lifecycle over HTTP.
type ProjectHandler struct {
	service projectService
}

// NewProjectHandler constructs the handler.
func NewProjectHandler(svc projectService) *ProjectHandler {
	return &ProjectHandler{service: svc}
}

type transitionFunc func(ctx context.Context, actor service.Actor, projectID string) (*models.Project, error)

// Create godoc
// @Summary Open a draft project
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body dto.CreateProjectRequest true "Project brief"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateProjectRequest
	if !bindJSON(c, &req, "invalid project payload") {
		return
	}
	project, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewProjectResponse(project, actor.Role))
}

// List godoc
// @Summary List visible projects
// @Tags Projects
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	page, size, err := pageParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query := dto.ProjectQuery{Limit: size, Offset: (page - 1) * size}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				query.Status = append(query.Status, models.ProjectStatus(part))
			}
		}
	}

	projects, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		items = append(items, dto.NewProjectResponse(&projects[i], actor.Role))
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Page: page, PageSize: size, TotalCount: len(items)})
}

// Get godoc
// @Summary Get a project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	runTransition(c, h.service.Get)
}

// History godoc
// @Summary Project status trail
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/history [get]
func (h *ProjectHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	history, err := h.service.History(c.Request.Context(), actor, projectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Submit godoc
// @Summary Submit a draft for analysis
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/submit [post]
func (h *ProjectHandler) Submit(c *gin.Context) { runTransition(c, h.service.Submit) }

// StartAnalysis godoc
// @Summary Claim a submitted project
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/analysis [post]
func (h *ProjectHandler) StartAnalysis(c *gin.Context) { runTransition(c, h.service.StartAnalysis) }

// Quote godoc
// @Summary Price an analysed project
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.QuoteRequest true "Pricing inputs"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/quote [post]
func (h *ProjectHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if !bindJSON(c, &req, "invalid quote payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.Quote(ctx, actor, id, req)
	})
}

// RequestPayment godoc
// @Summary Accept the quote and await payment
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/payment-request [post]
func (h *ProjectHandler) RequestPayment(c *gin.Context) { runTransition(c, h.service.RequestPayment) }

// StartAssigning godoc
// @Summary Open a paid project for doer assignment
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/assigning [post]
func (h *ProjectHandler) StartAssigning(c *gin.Context) { runTransition(c, h.service.StartAssigning) }

// AssignDoer godoc
// @Summary Propose or directly assign a doer
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.AssignDoerRequest true "Doer"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/assign [post]
func (h *ProjectHandler) AssignDoer(c *gin.Context) {
	var req dto.AssignDoerRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.AssignDoer(ctx, actor, id, req)
	})
}

// AcceptAssignment godoc
// @Summary Doer accepts the offered project
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/accept [post]
func (h *ProjectHandler) AcceptAssignment(c *gin.Context) { runTransition(c, h.service.AcceptAssignment) }

// DeclineAssignment godoc
// @Summary Doer declines the offered project
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ReasonRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/decline [post]
func (h *ProjectHandler) DeclineAssignment(c *gin.Context) { h.withReason(c, h.service.DeclineAssignment) }

// StartWork godoc
// @Summary Doer starts working
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/start [post]
func (h *ProjectHandler) StartWork(c *gin.Context) { runTransition(c, h.service.StartWork) }

// StartRevision godoc
// @Summary Doer starts a revision round
// @Tags Projects
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/revision/start [post]
func (h *ProjectHandler) StartRevision(c *gin.Context) { runTransition(c, h.service.StartRevision) }

// ApproveDelivery godoc
// @Summary Client approves the delivery
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ApproveDeliveryRequest false "Feedback"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/approve [post]
func (h *ProjectHandler) ApproveDelivery(c *gin.Context) {
	var req dto.ApproveDeliveryRequest
	if !bindOptionalJSON(c, &req, "invalid approval payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.ApproveDelivery(ctx, actor, id, req)
	})
}

// RequestRevision godoc
// @Summary Client disputes the delivery
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ReasonRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/revision-request [post]
func (h *ProjectHandler) RequestRevision(c *gin.Context) { h.withReason(c, h.service.RequestRevision) }

// Cancel godoc
// @Summary Cancel a project
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ReasonRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/cancel [post]
func (h *ProjectHandler) Cancel(c *gin.Context) { h.withReason(c, h.service.Cancel) }

// Refund godoc
// @Summary Refund after a failed quality review
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ReasonRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/refund [post]
func (h *ProjectHandler) Refund(c *gin.Context) { h.withReason(c, h.service.Refund) }

// ExtendDeadline godoc
// @Summary Move the deadline
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.ExtendDeadlineRequest true "New deadline"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/deadline [post]
func (h *ProjectHandler) ExtendDeadline(c *gin.Context) {
	var req dto.ExtendDeadlineRequest
	if !bindJSON(c, &req, "invalid deadline payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.ExtendDeadline(ctx, actor, id, req)
	})
}

// OverrideSettlement godoc
// @Summary Reprice a paid project
// @Tags Projects
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.OverrideSettlementRequest true "New quote"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/settlement-override [post]
func (h *ProjectHandler) OverrideSettlement(c *gin.Context) {
	var req dto.OverrideSettlementRequest
	if !bindJSON(c, &req, "invalid override payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.OverrideSettlement(ctx, actor, id, req)
	})
}

// runTransition resolves the caller, applies fn and renders the project
// with the next actions open to the caller.
func runTransition(c *gin.Context, fn transitionFunc) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	project, err := fn(c.Request.Context(), actor, projectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProjectResponse(project, actor.Role), nil)
}

func (h *ProjectHandler) withReason(c *gin.Context, fn func(ctx context.Context, actor service.Actor, projectID, reason string) (*models.Project, error)) {
	var req dto.ReasonRequest
	if !bindOptionalJSON(c, &req, "invalid reason payload") {
		return
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return fn(ctx, actor, id, req.Reason)
	})
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dest interface{}, message string) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (int, int, error) {
	page, size := 1, defaultPageSize
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		page = v
	}
	if raw := c.Query("page_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageSize {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page_size must be between 1 and 100")
		}
		size = v
	}
	return page, size, nil
}
