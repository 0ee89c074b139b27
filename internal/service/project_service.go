package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/settlement"
)

// Listing scopes decide which projects supervisors see.
const (
	ListingScopeScoped   = "scoped"
	ListingScopePlatform = "platform"
)

type projectStore interface {
	transitionStore
	Create(ctx context.Context, project *models.Project) error
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	History(ctx context.Context, projectID string) ([]models.ProjectEvent, error)
	QCReviews(ctx context.Context, projectID string) ([]models.QCReview, error)
	Payouts(ctx context.Context, projectID string) ([]models.SettlementPayout, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type blacklistChecker interface {
	Exists(ctx context.Context, supervisorID, doerID string) (bool, error)
}

// ProjectServiceConfig tunes project behaviour.
type ProjectServiceConfig struct {
	ListingScope string
}

// ProjectServiceParams groups constructor dependencies.
type ProjectServiceParams struct {
	Store      projectStore
	Lifecycle  *Lifecycle
	Users      userLookup
	Blacklist  blacklistChecker
	Calculator *settlement.Calculator
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     ProjectServiceConfig
}

// ProjectService drives a project from draft to settlement.
type ProjectService struct {
	store      projectStore
	lifecycle  *Lifecycle
	users      userLookup
	blacklist  blacklistChecker
	calculator *settlement.Calculator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ProjectServiceConfig
}

// NewProjectService constructs the service.
func NewProjectService(params ProjectServiceParams) *ProjectService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	calculator := params.Calculator
	if calculator == nil {
		calculator = settlement.NewCalculator(settlement.DefaultPricing())
	}
	cfg := params.Config
	if cfg.ListingScope != ListingScopePlatform {
		cfg.ListingScope = ListingScopeScoped
	}
	return &ProjectService{
		store:      params.Store,
		lifecycle:  params.Lifecycle,
		users:      params.Users,
		blacklist:  params.Blacklist,
		calculator: calculator,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Create opens a draft project for the client.
func (s *ProjectService) Create(ctx context.Context, actor Actor, req dto.CreateProjectRequest) (*models.Project, error) {
	if actor.Role != workflow.RoleClient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only clients can create projects")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.WordCount <= 0 && req.PageCount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "wordCount or pageCount is required")
	}
	now := s.lifecycle.now().UTC()
	if !req.Deadline.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be in the future")
	}
	urgency := req.Urgency
	if urgency == "" {
		urgency = settlement.UrgencyFor(req.Deadline.Sub(now))
	}

	project := &models.Project{
		ServiceType:   req.ServiceType,
		Title:         strings.TrimSpace(req.Title),
		Subject:       strings.TrimSpace(req.Subject),
		Instructions:  req.Instructions,
		WordCount:     req.WordCount,
		PageCount:     req.PageCount,
		CitationStyle: req.CitationStyle,
		Urgency:       urgency,
		Complexity:    settlement.ComplexityBasic,
		ClientID:      actor.UserID,
		Status:        models.ProjectStatusDraft,
		Deadline:      req.Deadline.UTC(),
		CreatedAt:     now,
	}

	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()
	if err := s.store.Create(ctx, project); err != nil {
		return nil, s.lifecycle.fail(ctx, err)
	}
	return project, nil
}

// Get returns a project visible to the actor.
func (s *ProjectService) Get(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	project, err := s.lifecycle.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, project) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project is not visible to this user")
	}
	return project, nil
}

// List returns projects visible to the actor.
func (s *ProjectService) List(ctx context.Context, actor Actor, query dto.ProjectQuery) ([]models.Project, error) {
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown project status "+string(status))
		}
	}
	filter := models.ProjectFilter{Status: query.Status, Limit: query.Limit, Offset: query.Offset}
	switch actor.Role {
	case workflow.RoleClient:
		filter.ClientID = actor.UserID
	case workflow.RoleDoer:
		filter.DoerID = actor.UserID
	case workflow.RoleSupervisor:
		if !actor.Admin && s.cfg.ListingScope == ListingScopeScoped {
			filter.SupervisorID = actor.UserID
			filter.Unclaimed = true
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	projects, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

func (s *ProjectService) canView(actor Actor, project *models.Project) bool {
	if actor.Admin || actor.Role == workflow.RoleSystem {
		return true
	}
	switch actor.Role {
	case workflow.RoleClient:
		return project.ClientID == actor.UserID
	case workflow.RoleDoer:
		return lo.FromPtr(project.DoerID) == actor.UserID || lo.FromPtr(project.ProposedDoerID) == actor.UserID
	case workflow.RoleSupervisor:
		if s.cfg.ListingScope == ListingScopePlatform {
			return true
		}
		if project.SupervisorID == nil {
			return project.Status == models.ProjectStatusSubmitted
		}
		return *project.SupervisorID == actor.UserID
	}
	return false
}

// History returns the status trail, review rounds and payouts.
func (s *ProjectService) History(ctx context.Context, actor Actor, projectID string) (*dto.ProjectHistoryResponse, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	events, err := s.store.History(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project history")
	}
	reviews, err := s.store.QCReviews(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qc reviews")
	}
	payouts, err := s.store.Payouts(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payouts")
	}
	return &dto.ProjectHistoryResponse{ProjectID: projectID, Events: events, Reviews: reviews, Payouts: payouts}, nil
}

// Submit sends a draft to the supervisors.
func (s *ProjectService) Submit(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionSubmit, nil)
}

// StartAnalysis claims a submitted project for the supervisor.
func (s *ProjectService) StartAnalysis(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionStartAnalysis, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if project.SupervisorID != nil {
			return nil, nil
		}
		return &change{set: map[string]interface{}{"supervisor_id": actor.UserID}}, nil
	})
}

// Quote prices the project. The split itself is locked when payment is confirmed.
func (s *ProjectService) Quote(ctx context.Context, actor Actor, projectID string, req dto.QuoteRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionQuote, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if project.PriceLocked {
			return nil, appErrors.Precondition("PRICE_LOCKED", "price is locked once payment is confirmed")
		}
		input := settlement.Input{
			BaseRate:   req.BaseRate,
			Count:      project.Count(),
			Urgency:    lo.Ternary(req.Urgency != "", req.Urgency, project.Urgency),
			Complexity: lo.Ternary(req.Complexity != "", req.Complexity, project.Complexity),
		}
		result, err := s.calculator.Calculate(input)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		return &change{
			set: map[string]interface{}{
				"base_rate":       input.BaseRate,
				"urgency_tier":    input.Urgency,
				"complexity_tier": input.Complexity,
				"client_quote":    result.ClientQuote,
			},
			payload: dto.QuotePreview{Input: input, Result: result},
		}, nil
	})
}

// RequestPayment accepts the quote on the client's behalf.
func (s *ProjectService) RequestPayment(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionRequestPayment, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if project.ClientQuote == nil {
			return nil, appErrors.Precondition("SETTLEMENT_MISSING", "project has not been quoted")
		}
		return nil, nil
	})
}

// StartAssigning opens a paid project for doer assignment.
func (s *ProjectService) StartAssigning(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionStartAssigning, nil)
}

// AssignDoer offers the project to a doer, or assigns them outright with Override.
func (s *ProjectService) AssignDoer(ctx context.Context, actor Actor, projectID string, req dto.AssignDoerRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	doer, err := s.users.FindByID(ctx, req.DoerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "doer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doer")
	}
	if doer.Role != models.RoleDoer || !doer.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an active doer")
	}

	action := workflow.ActionProposeDoer
	if req.Override {
		action = workflow.ActionAssign
	}
	doerID := doer.ID
	return s.lifecycle.apply(ctx, actor, projectID, action, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if err := s.ensureNotBlacklisted(ctx, project, doerID); err != nil {
			return nil, err
		}
		set := map[string]interface{}{"proposed_doer_id": doerID}
		if req.Override {
			set = map[string]interface{}{"doer_id": doerID, "proposed_doer_id": nil}
		}
		return &change{
			set:                set,
			payload:            map[string]interface{}{"doerId": doerID, "override": req.Override},
			excludeBlacklisted: &doerID,
		}, nil
	})
}

// AcceptAssignment lets the proposed doer take the project.
func (s *ProjectService) AcceptAssignment(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	doerID := actor.UserID
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionAcceptAssignment, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if err := s.ensureNotBlacklisted(ctx, project, doerID); err != nil {
			return nil, err
		}
		return &change{
			set:                map[string]interface{}{"doer_id": doerID, "proposed_doer_id": nil},
			excludeBlacklisted: &doerID,
		}, nil
	})
}

// DeclineAssignment returns the offer to the supervisor.
func (s *ProjectService) DeclineAssignment(ctx context.Context, actor Actor, projectID, reason string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionDeclineAssignment, func(*models.Project, workflow.Transition) (*change, error) {
		ch := &change{set: map[string]interface{}{"proposed_doer_id": nil}}
		if reason = strings.TrimSpace(reason); reason != "" {
			ch.reason = &reason
		}
		return ch, nil
	})
}

func (s *ProjectService) ensureNotBlacklisted(ctx context.Context, project *models.Project, doerID string) error {
	if s.blacklist == nil || project.SupervisorID == nil {
		return nil
	}
	barred, err := s.blacklist.Exists(ctx, *project.SupervisorID, doerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check blacklist")
	}
	if barred {
		return appErrors.Precondition("DOER_BLACKLISTED", "doer is blacklisted by the project's supervisor")
	}
	return nil
}

// StartWork moves an assigned project into progress.
func (s *ProjectService) StartWork(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionStartWork, startWorkChange)
}

func startWorkChange(project *models.Project, _ workflow.Transition) (*change, error) {
	if project.DoerID == nil || project.SupervisorID == nil {
		return nil, appErrors.Precondition("PARTIES_MISSING", "project needs a supervisor and a doer")
	}
	return nil, nil
}

// StartRevision opens a new work round after a rejection.
func (s *ProjectService) StartRevision(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionStartRevision, func(*models.Project, workflow.Transition) (*change, error) {
		return &change{
			set:       map[string]interface{}{"submission_key": nil},
			increment: []string{"revision_count"},
		}, nil
	})
}

// ApproveDelivery completes the project and releases the settlement.
func (s *ProjectService) ApproveDelivery(ctx context.Context, actor Actor, projectID string, req dto.ApproveDeliveryRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionApproveDelivery, func(project *models.Project, _ workflow.Transition) (*change, error) {
		payouts, err := completionPayouts(project)
		if err != nil {
			return nil, err
		}
		var feedback *string
		if trimmed := strings.TrimSpace(req.Feedback); trimmed != "" {
			feedback = &trimmed
		}
		return &change{
			set: map[string]interface{}{
				"client_approved": true,
				"client_feedback": feedback,
				"client_grade":    req.Grade,
				"completed_at":    s.lifecycle.now().UTC(),
				"auto_approve_at": nil,
			},
			payouts: payouts,
		}, nil
	})
}

// RequestRevision disputes a delivery and cancels its approval timer.
func (s *ProjectService) RequestRevision(ctx context.Context, actor Actor, projectID, reason string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionRequestRevision, func(*models.Project, workflow.Transition) (*change, error) {
		why, err := requireReason(reason)
		if err != nil {
			return nil, err
		}
		return &change{
			set:    map[string]interface{}{"auto_approve_at": nil, "client_approved": false},
			reason: why,
		}, nil
	})
}

// Cancel stops the project and records what the client may be refunded.
func (s *ProjectService) Cancel(ctx context.Context, actor Actor, projectID, reason string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionCancel, func(project *models.Project, _ workflow.Transition) (*change, error) {
		why, err := requireReason(reason)
		if err != nil {
			return nil, err
		}
		return &change{
			set: map[string]interface{}{
				"cancelled_at":       s.lifecycle.now().UTC(),
				"cancel_reason":      *why,
				"refund_eligibility": workflow.RefundEligibility(project.Status),
				"auto_approve_at":    nil,
			},
			reason: why,
		}, nil
	})
}

// Refund returns the client's payment after a failed quality review.
func (s *ProjectService) Refund(ctx context.Context, actor Actor, projectID, reason string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionRefund, func(project *models.Project, _ workflow.Transition) (*change, error) {
		why, err := requireReason(reason)
		if err != nil {
			return nil, err
		}
		if project.QCRejectionCount < 1 {
			return nil, appErrors.Precondition("NO_QC_FAILURE", "refunds require at least one failed quality review")
		}
		return &change{
			set: map[string]interface{}{
				"refund_eligibility": workflow.RefundEligibility(project.Status),
				"auto_approve_at":    nil,
			},
			reason: why,
		}, nil
	})
}

// ExtendDeadline moves the deadline and reschedules a pending approval timer.
func (s *ProjectService) ExtendDeadline(ctx context.Context, actor Actor, projectID string, req dto.ExtendDeadlineRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	deadline := req.Deadline.UTC()
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionExtendDeadline, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if !deadline.After(project.Deadline) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "new deadline must be later than the current one")
		}
		why, err := requireReason(req.Reason)
		if err != nil {
			return nil, err
		}
		set := map[string]interface{}{
			"deadline":                  deadline,
			"deadline_extended":         true,
			"deadline_extension_reason": *why,
		}
		if project.Status == models.ProjectStatusDelivered && project.DeliveredAt != nil {
			set["auto_approve_at"] = s.lifecycle.autoApproveAt(deadline, *project.DeliveredAt)
		}
		return &change{
			set:     set,
			reason:  why,
			payload: map[string]time.Time{"previous": project.Deadline, "deadline": deadline},
		}, nil
	})
}

// OverrideSettlement reprices a paid project. It is the only way a locked
// price changes and always leaves an override row and an audit entry.
func (s *ProjectService) OverrideSettlement(ctx context.Context, actor Actor, projectID string, req dto.OverrideSettlementRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	var override *models.SettlementOverride
	project, err := s.lifecycle.apply(ctx, actor, projectID, workflow.ActionOverrideSettlement, func(project *models.Project, _ workflow.Transition) (*change, error) {
		why, err := requireReason(req.Reason)
		if err != nil {
			return nil, err
		}
		old := project.Settlement()
		if old == nil {
			return nil, appErrors.Precondition("SETTLEMENT_MISSING", "project has no locked settlement")
		}
		next, err := settlement.Split(req.ClientQuote)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		override = &models.SettlementOverride{
			OldClientQuote:          old.ClientQuote,
			OldDoerPayout:           old.DoerPayout,
			OldSupervisorCommission: old.SupervisorCommission,
			OldPlatformFee:          old.PlatformFee,
			NewClientQuote:          next.ClientQuote,
			NewDoerPayout:           next.DoerPayout,
			NewSupervisorCommission: next.SupervisorCommission,
			NewPlatformFee:          next.PlatformFee,
			Reason:                  *why,
			ActorID:                 actor.UserID,
		}
		return &change{
			set: map[string]interface{}{
				"client_quote":          next.ClientQuote,
				"doer_payout":           next.DoerPayout,
				"supervisor_commission": next.SupervisorCommission,
				"platform_fee":          next.PlatformFee,
			},
			reason:   why,
			payload:  next,
			override: override,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	oldValues, _ := json.Marshal(settlement.Result{
		ClientQuote:          override.OldClientQuote,
		DoerPayout:           override.OldDoerPayout,
		SupervisorCommission: override.OldSupervisorCommission,
		PlatformFee:          override.OldPlatformFee,
	})
	newValues, _ := json.Marshal(project.Settlement())
	s.lifecycle.emitAudit(ctx, &models.AuditLog{
		UserID:     lo.ToPtr(actor.UserID),
		Action:     models.AuditActionSettlementOverride,
		Resource:   "project",
		ResourceID: lo.ToPtr(project.ID),
		OldValues:  oldValues,
		NewValues:  newValues,
	})
	return project, nil
}
