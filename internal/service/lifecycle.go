package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/repository"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

const (
	defaultActionTimeout = 10 * time.Second
	defaultApprovalGrace = 72 * time.Hour
)

type transitionStore interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.Project, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// transitionPublisher receives one notice per status hop. Implementations must not block.
type transitionPublisher interface {
	Publish(ctx context.Context, notices []models.StatusNotification)
}

// Actor identifies who attempts an action.
type Actor struct {
	UserID string
	Role   workflow.Role
	// Admin actors act with supervisor authority on any project.
	Admin bool
}

// SystemActor performs timer and payment driven transitions.
var SystemActor = Actor{UserID: "system", Role: workflow.RoleSystem}

// ActorFromClaims maps authenticated claims to a workflow actor.
func ActorFromClaims(claims *models.JWTClaims) (Actor, error) {
	if claims == nil || claims.UserID == "" {
		return Actor{}, appErrors.ErrUnauthorized
	}
	role, ok := workflow.RoleFromUser(claims.Role)
	if !ok {
		return Actor{}, appErrors.Clone(appErrors.ErrForbidden, "role cannot act on projects")
	}
	return Actor{UserID: claims.UserID, Role: role, Admin: claims.Role == models.RoleAdmin}, nil
}

// change is the field-level effect of an accepted action.
type change struct {
	set                map[string]interface{}
	increment          []string
	reason             *string
	payload            interface{}
	qcReview           *models.QCReview
	payouts            []models.SettlementPayout
	override           *models.SettlementOverride
	excludeBlacklisted *string
	dueBy              *time.Time
}

// prepareFunc checks action preconditions against the loaded project and
// returns the fields to write alongside the status change.
type prepareFunc func(project *models.Project, tr workflow.Transition) (*change, error)

// LifecycleParams groups the lifecycle dependencies.
type LifecycleParams struct {
	Store     transitionStore
	Audit     auditLogger
	Publisher transitionPublisher
	Metrics   *MetricsService
	Logger    *zap.Logger
	// Timeout bounds every action including its reloads.
	Timeout time.Duration
	// Grace is added to max(deadline, delivered_at) to schedule auto approval.
	Grace time.Duration
}

// Lifecycle applies workflow decisions to stored projects. Every status
// change in the service layer goes through it.
type Lifecycle struct {
	store     transitionStore
	audit     auditLogger
	publisher transitionPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	timeout   time.Duration
	grace     time.Duration
	now       func() time.Time
}

// NewLifecycle constructs the shared transition engine.
func NewLifecycle(params LifecycleParams) *Lifecycle {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultApprovalGrace
	}
	return &Lifecycle{
		store:     params.Store,
		audit:     params.Audit,
		publisher: params.Publisher,
		metrics:   params.Metrics,
		logger:    logger,
		timeout:   timeout,
		grace:     grace,
		now:       time.Now,
	}
}

// Grace returns the configured auto approval window.
func (l *Lifecycle) Grace() time.Duration {
	return l.grace
}

func (l *Lifecycle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Lifecycle) load(ctx context.Context, projectID string) (*models.Project, error) {
	project, err := l.store.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, l.fail(ctx, err)
	}
	return project, nil
}

// apply runs one action end to end: decide, check the party, prepare the
// change and write it with a check-and-set on the current status.
func (l *Lifecycle) apply(ctx context.Context, actor Actor, projectID string, action workflow.Action, prepare prepareFunc) (*models.Project, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	project, err := l.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return l.applyTo(ctx, actor, project, action, prepare)
}

func (l *Lifecycle) applyTo(ctx context.Context, actor Actor, project *models.Project, action workflow.Action, prepare prepareFunc) (*models.Project, error) {
	tr, err := workflow.Decide(project.Status, action, actor.Role)
	if err != nil {
		return nil, l.reject(ctx, actor, project, action, err)
	}
	column, err := partyColumn(project, tr, actor)
	if err != nil {
		return nil, l.reject(ctx, actor, project, action, err)
	}
	ch := &change{}
	if prepare != nil {
		prepared, err := prepare(project, tr)
		if err != nil {
			return nil, l.reject(ctx, actor, project, action, err)
		}
		if prepared != nil {
			ch = prepared
		}
	}

	params := repository.TransitionParams{
		ProjectID:          project.ID,
		Expected:           tr.From,
		Target:             tr.To,
		Hops:               tr.Hops(),
		Action:             string(action),
		ActorID:            actor.UserID,
		ActorRole:          string(actor.Role),
		Reason:             ch.reason,
		ActorColumn:        column,
		ExcludeBlacklisted: ch.excludeBlacklisted,
		DueBy:              ch.dueBy,
		Set:                ch.set,
		Increment:          ch.increment,
		QCReview:           ch.qcReview,
		Payouts:            ch.payouts,
		Override:           ch.override,
	}
	if ch.payload != nil {
		payload, err := json.Marshal(ch.payload)
		if err != nil {
			return nil, l.fail(ctx, err)
		}
		params.Payload = payload
	}

	updated, err := l.store.ApplyTransition(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, l.reject(ctx, actor, project, action, l.explainMiss(ctx, project, tr, actor, ch))
		}
		return nil, l.fail(ctx, err)
	}

	l.metrics.RecordTransition(string(action), string(tr.To))
	l.notify(ctx, updated, tr, actor, ch.reason)
	return updated, nil
}

// explainMiss reloads the project after a check-and-set matched no row and
// reports why.
func (l *Lifecycle) explainMiss(ctx context.Context, project *models.Project, tr workflow.Transition, actor Actor, ch *change) error {
	current, err := l.load(ctx, project.ID)
	if err != nil {
		return err
	}
	if current.Status != tr.From || ch.dueBy != nil {
		return workflow.StateChanged(current.Status, tr.Action, actor.Role)
	}
	if ch.excludeBlacklisted != nil {
		return appErrors.Precondition("DOER_BLACKLISTED", "doer is blacklisted by the project's supervisor")
	}
	return workflow.NotParty(current.Status, tr.Action, actor.Role)
}

func partyColumn(project *models.Project, tr workflow.Transition, actor Actor) (string, error) {
	if actor.Role == workflow.RoleSystem || actor.Admin {
		return repository.ActorAny, nil
	}
	notParty := workflow.NotParty(project.Status, tr.Action, actor.Role)
	switch actor.Role {
	case workflow.RoleClient:
		if project.ClientID != actor.UserID {
			return "", notParty
		}
		return repository.ActorClient, nil
	case workflow.RoleSupervisor:
		if tr.Action == workflow.ActionStartAnalysis {
			if project.SupervisorID != nil && *project.SupervisorID != actor.UserID {
				return "", notParty
			}
			return repository.ActorClaimSupervisor, nil
		}
		if lo.FromPtr(project.SupervisorID) != actor.UserID {
			return "", notParty
		}
		return repository.ActorSupervisor, nil
	case workflow.RoleDoer:
		if tr.Action == workflow.ActionAcceptAssignment || tr.Action == workflow.ActionDeclineAssignment {
			if lo.FromPtr(project.ProposedDoerID) != actor.UserID {
				return "", appErrors.Precondition("NOT_ASSIGNED_DOER", "assignment was not offered to this doer")
			}
			return repository.ActorProposedDoer, nil
		}
		if lo.FromPtr(project.DoerID) != actor.UserID {
			return "", notParty
		}
		return repository.ActorDoer, nil
	}
	return "", notParty
}

// reject normalises a rejection so it names the current status and the
// caller's next actions, then logs and counts it.
func (l *Lifecycle) reject(ctx context.Context, actor Actor, project *models.Project, action workflow.Action, err error) error {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) || appErr.Code == appErrors.ErrInternal.Code || appErr.Code == appErrors.ErrTimeout.Code {
		return l.fail(ctx, err)
	}
	if _, ok := appErr.Details["current_status"]; !ok {
		appErr = workflow.WithState(appErr, project.Status, action, actor.Role)
	}

	l.metrics.RecordTransitionRejection(appErr.Code)
	l.logger.Info("project transition rejected",
		zap.String("project_id", project.ID),
		zap.String("status", string(project.Status)),
		zap.String("action", string(action)),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("code", appErr.Code),
		zap.Any("reason", appErr.Details["reason"]),
	)
	if appErr.Code == appErrors.ErrForbidden.Code {
		values, _ := json.Marshal(map[string]interface{}{
			"action": action,
			"status": project.Status,
			"role":   actor.Role,
		})
		l.emitAudit(ctx, &models.AuditLog{
			UserID:     lo.ToPtr(actor.UserID),
			Action:     models.AuditActionTransitionRejected,
			Resource:   "project",
			ResourceID: lo.ToPtr(project.ID),
			NewValues:  values,
		})
	}
	return appErr
}

// fail maps infrastructure errors, turning an expired action deadline into TIMEOUT.
func (l *Lifecycle) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "project action timed out")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply project action")
}

func (l *Lifecycle) notify(ctx context.Context, project *models.Project, tr workflow.Transition, actor Actor, reason *string) {
	if l.publisher == nil || !tr.ChangesStatus() {
		return
	}
	recipients := projectRecipients(project)
	occurred := l.now().UTC()
	notices := make([]models.StatusNotification, 0, len(tr.Path))
	for _, hop := range tr.Hops() {
		notices = append(notices, models.StatusNotification{
			ProjectID:     project.ID,
			ProjectNumber: project.ProjectNumber,
			FromStatus:    hop[0],
			ToStatus:      hop[1],
			Action:        string(tr.Action),
			ActorID:       actor.UserID,
			ActorRole:     string(actor.Role),
			Reason:        reason,
			Recipients:    recipients,
			OccurredAt:    occurred,
		})
	}
	l.publisher.Publish(ctx, notices)
}

func projectRecipients(project *models.Project) []string {
	ids := []string{
		project.ClientID,
		lo.FromPtr(project.SupervisorID),
		lo.FromPtr(project.DoerID),
		lo.FromPtr(project.ProposedDoerID),
	}
	return lo.Uniq(lo.Compact(ids))
}

func (l *Lifecycle) emitAudit(ctx context.Context, log *models.AuditLog) {
	if l.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "project-lifecycle"
	if err := l.audit.CreateAuditLog(ctx, log); err != nil {
		l.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// autoApproveAt schedules the approval timer for a delivery.
func (l *Lifecycle) autoApproveAt(deadline, deliveredAt time.Time) time.Time {
	base := deadline
	if deliveredAt.After(base) {
		base = deliveredAt
	}
	return base.Add(l.grace).UTC()
}

// completionPayouts releases the locked split to its beneficiaries.
func completionPayouts(project *models.Project) ([]models.SettlementPayout, error) {
	split := project.Settlement()
	if split == nil {
		return nil, appErrors.Precondition("SETTLEMENT_MISSING", "project has no locked settlement")
	}
	return []models.SettlementPayout{
		{Kind: models.PayoutDoer, BeneficiaryID: project.DoerID, Amount: split.DoerPayout},
		{Kind: models.PayoutSupervisor, BeneficiaryID: project.SupervisorID, Amount: split.SupervisorCommission},
		{Kind: models.PayoutPlatform, Amount: split.PlatformFee},
	}, nil
}

func requireReason(reason string) (*string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Precondition("REASON_REQUIRED", "a reason is required")
	}
	return &reason, nil
}
