package dto

import (
	"time"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	"github.com/noah-isme/assignx-api/pkg/settlement"
)

// CreateProjectRequest is submitted by a client to open a draft project.
type CreateProjectRequest struct {
	ServiceType   models.ServiceType     `json:"serviceType" validate:"required,oneof=essay research_paper dissertation proofreading coding presentation other"`
	Title         string                 `json:"title" validate:"required,max=200"`
	Subject       string                 `json:"subject" validate:"required,max=120"`
	Instructions  string                 `json:"instructions" validate:"max=10000"`
	WordCount     int                    `json:"wordCount" validate:"gte=0"`
	PageCount     int                    `json:"pageCount" validate:"gte=0"`
	CitationStyle string                 `json:"citationStyle" validate:"max=40"`
	Deadline      time.Time              `json:"deadline" validate:"required"`
	Urgency       settlement.UrgencyTier `json:"urgencyTier" validate:"omitempty,oneof=standard expedited urgent express"`
}

// ProjectQuery mirrors supported listing filters.
type ProjectQuery struct {
	Status []models.ProjectStatus
	Limit  int
	Offset int
}

// ReasonRequest carries the mandatory reason of cancel, refund and revision actions.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// QuoteRequest prices an analysed project.
type QuoteRequest struct {
	BaseRate   int64                     `json:"baseRate" validate:"required,gt=0"`
	Urgency    settlement.UrgencyTier    `json:"urgencyTier" validate:"omitempty,oneof=standard expedited urgent express"`
	Complexity settlement.ComplexityTier `json:"complexityTier" validate:"omitempty,oneof=basic intermediate advanced"`
}

// AssignDoerRequest proposes a doer or, with Override, assigns directly.
type AssignDoerRequest struct {
	DoerID   string `json:"doerId" validate:"required"`
	Override bool   `json:"override"`
}

// ApproveDeliveryRequest records the client's sign-off.
type ApproveDeliveryRequest struct {
	Feedback string `json:"feedback" validate:"max=2000"`
	Grade    *int   `json:"grade" validate:"omitempty,min=1,max=5"`
}

// ExtendDeadlineRequest moves the deadline with a justification.
type ExtendDeadlineRequest struct {
	Deadline time.Time `json:"deadline" validate:"required"`
	Reason   string    `json:"reason" validate:"required,max=2000"`
}

// OverrideSettlementRequest reprices a paid project.
type OverrideSettlementRequest struct {
	ClientQuote int64  `json:"clientQuote" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=2000"`
}

// ProjectResponse pairs a project with what the caller may do next.
type ProjectResponse struct {
	*models.Project
	NextActions []workflow.Action `json:"nextActions"`
}

// NewProjectResponse attaches the actions the role may take next.
func NewProjectResponse(project *models.Project, role workflow.Role) ProjectResponse {
	return ProjectResponse{Project: project, NextActions: workflow.NextActions(project.Status, role)}
}

// ProjectHistoryResponse lists the status trail and review rounds.
type ProjectHistoryResponse struct {
	ProjectID string                    `json:"projectId"`
	Events    []models.ProjectEvent     `json:"events"`
	Reviews   []models.QCReview         `json:"reviews"`
	Payouts   []models.SettlementPayout `json:"payouts"`
}

// QuotePreview is returned by the quote calculator endpoints.
type QuotePreview struct {
	Input  settlement.Input  `json:"input"`
	Result settlement.Result `json:"result"`
}
