package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/settlement"
	"github.com/noah-isme/assignx-api/pkg/storage"
)

var (
	clientActor     = Actor{UserID: "client-1", Role: workflow.RoleClient}
	otherClient     = Actor{UserID: "client-2", Role: workflow.RoleClient}
	supervisorActor = Actor{UserID: "sup-1", Role: workflow.RoleSupervisor}
	otherSupervisor = Actor{UserID: "sup-2", Role: workflow.RoleSupervisor}
	doerActor       = Actor{UserID: "doer-1", Role: workflow.RoleDoer}
	otherDoer       = Actor{UserID: "doer-2", Role: workflow.RoleDoer}
)

type projectHarness struct {
	store        *memoryProjectStore
	clock        *fixedClock
	publisher    *recordingPublisher
	audit        *recordingAudit
	flags        *recordingFlags
	metrics      *MetricsService
	lifecycle    *Lifecycle
	projects     *ProjectService
	quality      *QualityService
	payments     *PaymentService
	deliverables *DeliverableService
	sweeper      *AutoApprovalService
}

func newProjectHarness(t *testing.T, seed ...*models.Project) *projectHarness {
	t.Helper()
	h := &projectHarness{
		store:     newMemoryProjectStore(seed...),
		clock:     &fixedClock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		audit:     &recordingAudit{},
		flags:     &recordingFlags{},
		metrics:   NewMetricsService(),
	}
	h.lifecycle = NewLifecycle(LifecycleParams{
		Store:     h.store,
		Audit:     h.audit,
		Publisher: h.publisher,
		Metrics:   h.metrics,
		Logger:    zap.NewNop(),
	})
	h.lifecycle.now = h.clock.Now

	users := stubUsers{
		"doer-1":   {ID: "doer-1", Role: models.RoleDoer, Active: true},
		"doer-2":   {ID: "doer-2", Role: models.RoleDoer, Active: true},
		"doer-off": {ID: "doer-off", Role: models.RoleDoer, Active: false},
		"client-1": {ID: "client-1", Role: models.RoleClient, Active: true},
	}
	h.projects = NewProjectService(ProjectServiceParams{
		Store:     h.store,
		Lifecycle: h.lifecycle,
		Users:     users,
		Blacklist: h.store,
	})
	h.quality = NewQualityService(h.lifecycle, nil, nil)
	h.payments = NewPaymentService(h.lifecycle, h.flags, nil, nil)
	h.deliverables = NewDeliverableService(DeliverableServiceParams{
		Lifecycle: h.lifecycle,
		Projects:  h.projects,
		Store:     &memoryDeliverableStore{},
		Objects:   &memoryObjects{},
		Signer:    storage.NewSignedURLSigner("test-secret", time.Hour),
	})
	h.sweeper = NewAutoApprovalService(h.lifecycle, h.store, h.metrics, nil, 10)
	return h
}

func (h *projectHarness) upload(t *testing.T, projectID, key string) {
	t.Helper()
	_, err := h.deliverables.Upload(context.Background(), doerActor, projectID, dto.UploadDeliverableRequest{
		FileName:       "essay.docx",
		MimeType:       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		SizeBytes:      5,
		IdempotencyKey: key,
	}, strings.NewReader("draft"))
	require.NoError(t, err)
}

// seedProject returns a project already in the given status with every party set.
func seedProject(id string, status models.ProjectStatus, deadline time.Time) *models.Project {
	split, _ := settlement.Split(10000)
	return &models.Project{
		ID:                   id,
		ProjectNumber:        "AX-" + id,
		ServiceType:          models.ServiceTypeEssay,
		Title:                "Essay",
		WordCount:            1000,
		Urgency:              settlement.UrgencyStandard,
		Complexity:           settlement.ComplexityBasic,
		ClientID:             clientActor.UserID,
		SupervisorID:         lo.ToPtr(supervisorActor.UserID),
		DoerID:               lo.ToPtr(doerActor.UserID),
		BaseRate:             10,
		ClientQuote:          lo.ToPtr(split.ClientQuote),
		DoerPayout:           lo.ToPtr(split.DoerPayout),
		SupervisorCommission: lo.ToPtr(split.SupervisorCommission),
		PlatformFee:          lo.ToPtr(split.PlatformFee),
		PriceLocked:          true,
		PaymentReference:     lo.ToPtr("pay-seed"),
		Status:               status,
		Deadline:             deadline,
	}
}

func requireCode(t *testing.T, err error, code string) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected typed error, got %v", err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

func requireReasonCode(t *testing.T, err error, reason string) {
	t.Helper()
	appErr := requireCode(t, err, appErrors.ErrPreconditionFailed.Code)
	assert.Equal(t, reason, appErr.Details["reason"])
}

func TestLifecycleHappyPathSettlesQuote(t *testing.T) {
	h := newProjectHarness(t)
	ctx := context.Background()

	project, err := h.projects.Create(ctx, clientActor, dto.CreateProjectRequest{
		ServiceType: models.ServiceTypeEssay,
		Title:       "Climate policy essay",
		Subject:     "Economics",
		WordCount:   1000,
		Deadline:    h.clock.Now().Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusDraft, project.Status)
	assert.Equal(t, settlement.UrgencyStandard, project.Urgency)
	id := project.ID

	_, err = h.projects.Submit(ctx, clientActor, id)
	require.NoError(t, err)
	project, err = h.projects.StartAnalysis(ctx, supervisorActor, id)
	require.NoError(t, err)
	assert.Equal(t, "sup-1", lo.FromPtr(project.SupervisorID))

	project, err = h.projects.Quote(ctx, supervisorActor, id, dto.QuoteRequest{BaseRate: 10})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusQuoted, project.Status)
	assert.Equal(t, int64(10000), lo.FromPtr(project.ClientQuote))
	assert.Nil(t, project.DoerPayout)

	_, err = h.projects.RequestPayment(ctx, clientActor, id)
	require.NoError(t, err)
	project, err = h.payments.ConfirmPayment(ctx, dto.PaymentConfirmation{ProjectID: id, Amount: 10000, Reference: "pay-1"})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusPaid, project.Status)
	assert.True(t, project.PriceLocked)
	assert.Equal(t, &settlement.Result{ClientQuote: 10000, DoerPayout: 6500, SupervisorCommission: 1500, PlatformFee: 2000}, project.Settlement())

	_, err = h.projects.StartAssigning(ctx, supervisorActor, id)
	require.NoError(t, err)
	project, err = h.projects.AssignDoer(ctx, supervisorActor, id, dto.AssignDoerRequest{DoerID: "doer-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusAssigning, project.Status)
	assert.Equal(t, "doer-1", lo.FromPtr(project.ProposedDoerID))
	project, err = h.projects.AcceptAssignment(ctx, doerActor, id)
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusAssigned, project.Status)
	assert.Nil(t, project.ProposedDoerID)

	h.upload(t, id, "file-1")
	require.Equal(t, models.ProjectStatusInProgress, h.store.project(id).Status)

	project, err = h.deliverables.SubmitWork(ctx, doerActor, id, dto.SubmitWorkRequest{IdempotencyKey: "round-1"})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusSubmittedForQC, project.Status)
	assert.False(t, project.LateSubmission)

	_, err = h.quality.StartReview(ctx, supervisorActor, id)
	require.NoError(t, err)
	_, err = h.quality.RecordScores(ctx, supervisorActor, id, dto.QCScoresRequest{PlagiarismScore: lo.ToPtr(3.5), AIScore: lo.ToPtr(8.0)})
	require.NoError(t, err)
	project, err = h.quality.Approve(ctx, supervisorActor, id, dto.QCApproveRequest{})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusDelivered, project.Status)
	require.NotNil(t, project.AutoApproveAt)
	assert.Equal(t, project.Deadline.Add(72*time.Hour), *project.AutoApproveAt)

	project, err = h.projects.ApproveDelivery(ctx, clientActor, id, dto.ApproveDeliveryRequest{Grade: lo.ToPtr(5)})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusCompleted, project.Status)
	assert.True(t, project.ClientApproved)
	assert.Nil(t, project.AutoApproveAt)

	payouts, err := h.store.Payouts(ctx, id)
	require.NoError(t, err)
	amounts := lo.SliceToMap(payouts, func(p models.SettlementPayout) (models.PayoutKind, int64) { return p.Kind, p.Amount })
	assert.Equal(t, map[models.PayoutKind]int64{
		models.PayoutDoer:       6500,
		models.PayoutSupervisor: 1500,
		models.PayoutPlatform:   2000,
	}, amounts)

	history, err := h.projects.History(ctx, clientActor, id)
	require.NoError(t, err)
	trail := lo.FilterMap(history.Events, func(e models.ProjectEvent, _ int) (models.ProjectStatus, bool) {
		return e.ToStatus, e.FromStatus != e.ToStatus
	})
	assert.Equal(t, []models.ProjectStatus{
		models.ProjectStatusSubmitted,
		models.ProjectStatusAnalyzing,
		models.ProjectStatusQuoted,
		models.ProjectStatusPaymentPending,
		models.ProjectStatusPaid,
		models.ProjectStatusAssigning,
		models.ProjectStatusAssigned,
		models.ProjectStatusInProgress,
		models.ProjectStatusSubmittedForQC,
		models.ProjectStatusQCInProgress,
		models.ProjectStatusQCApproved,
		models.ProjectStatusDelivered,
		models.ProjectStatusCompleted,
	}, trail)

	notices := h.publisher.all()
	assert.Len(t, notices, len(trail))
	last := notices[len(notices)-1]
	assert.Equal(t, models.ProjectStatusCompleted, last.ToStatus)
	assert.ElementsMatch(t, []string{"client-1", "sup-1", "doer-1"}, last.Recipients)
}

func TestLifecycleRejectionCarriesNextActions(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t, seedProject("p1", models.ProjectStatusDelivered, deadline))

	_, err := h.quality.StartReview(context.Background(), supervisorActor, "p1")
	appErr := requireCode(t, err, appErrors.ErrInvalidTransition.Code)
	assert.Equal(t, models.ProjectStatusDelivered, appErr.Details["current_status"])
	assert.Equal(t, workflow.ActionStartQC, appErr.Details["attempted_action"])
	assert.Contains(t, appErr.Details["next_actions"], workflow.ActionCancel)

	_, err = h.projects.ApproveDelivery(context.Background(), supervisorActor, "p1", dto.ApproveDeliveryRequest{})
	requireCode(t, err, appErrors.ErrForbidden.Code)
	assert.Contains(t, h.audit.actions(), models.AuditActionTransitionRejected)
	assert.Empty(t, h.publisher.all())
}

func TestLifecycleRejectsNonParties(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t,
		seedProject("delivered", models.ProjectStatusDelivered, deadline),
		seedProject("in-progress", models.ProjectStatusInProgress, deadline),
	)
	ctx := context.Background()

	_, err := h.projects.ApproveDelivery(ctx, otherClient, "delivered", dto.ApproveDeliveryRequest{})
	requireCode(t, err, appErrors.ErrForbidden.Code)

	_, err = h.projects.Cancel(ctx, otherSupervisor, "in-progress", "not mine")
	requireCode(t, err, appErrors.ErrForbidden.Code)

	h.upload(t, "in-progress", "k1")
	_, err = h.deliverables.SubmitWork(ctx, otherDoer, "in-progress", dto.SubmitWorkRequest{})
	requireCode(t, err, appErrors.ErrForbidden.Code)

	assert.Equal(t, models.ProjectStatusDelivered, h.store.project("delivered").Status)
	assert.Equal(t, models.ProjectStatusInProgress, h.store.project("in-progress").Status)
}

func TestAssignDoerRespectsBlacklist(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := seedProject("p1", models.ProjectStatusAssigning, deadline)
	seed.DoerID = nil
	h := newProjectHarness(t, seed)
	h.store.bar("sup-1", "doer-2")
	ctx := context.Background()

	_, err := h.projects.AssignDoer(ctx, supervisorActor, "p1", dto.AssignDoerRequest{DoerID: "doer-2"})
	requireReasonCode(t, err, "DOER_BLACKLISTED")
	_, err = h.projects.AssignDoer(ctx, supervisorActor, "p1", dto.AssignDoerRequest{DoerID: "doer-2", Override: true})
	requireReasonCode(t, err, "DOER_BLACKLISTED")

	_, err = h.projects.AssignDoer(ctx, supervisorActor, "p1", dto.AssignDoerRequest{DoerID: "doer-off"})
	requireCode(t, err, appErrors.ErrValidation.Code)

	project, err := h.projects.AssignDoer(ctx, supervisorActor, "p1", dto.AssignDoerRequest{DoerID: "doer-1", Override: true})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusAssigned, project.Status)
	assert.Equal(t, "doer-1", lo.FromPtr(project.DoerID))
}

func TestAcceptAssignmentRechecksBlacklist(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := seedProject("p1", models.ProjectStatusAssigning, deadline)
	seed.DoerID = nil
	h := newProjectHarness(t, seed)
	ctx := context.Background()

	_, err := h.projects.AssignDoer(ctx, supervisorActor, "p1", dto.AssignDoerRequest{DoerID: "doer-2"})
	require.NoError(t, err)

	_, err = h.projects.AcceptAssignment(ctx, doerActor, "p1")
	requireReasonCode(t, err, "NOT_ASSIGNED_DOER")

	h.store.bar("sup-1", "doer-2")
	_, err = h.projects.AcceptAssignment(ctx, otherDoer, "p1")
	requireReasonCode(t, err, "DOER_BLACKLISTED")
	assert.Equal(t, models.ProjectStatusAssigning, h.store.project("p1").Status)
}

func TestQuoteBlockedOncePriceLocked(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t, seedProject("p1", models.ProjectStatusPaid, deadline))

	_, err := h.projects.Quote(context.Background(), supervisorActor, "p1", dto.QuoteRequest{BaseRate: 20})
	requireCode(t, err, appErrors.ErrInvalidTransition.Code)
	assert.Equal(t, int64(10000), lo.FromPtr(h.store.project("p1").ClientQuote))
}

func TestOverrideSettlementWritesAuditTrail(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t, seedProject("p1", models.ProjectStatusInProgress, deadline))
	ctx := context.Background()

	_, err := h.projects.OverrideSettlement(ctx, supervisorActor, "p1", dto.OverrideSettlementRequest{ClientQuote: 12001, Reason: "  "})
	requireReasonCode(t, err, "REASON_REQUIRED")

	project, err := h.projects.OverrideSettlement(ctx, supervisorActor, "p1", dto.OverrideSettlementRequest{ClientQuote: 12001, Reason: "scope grew"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusInProgress, project.Status)
	split := project.Settlement()
	require.NotNil(t, split)
	assert.Equal(t, int64(12001), split.ClientQuote)
	assert.Equal(t, split.ClientQuote, split.DoerPayout+split.SupervisorCommission+split.PlatformFee)

	require.Len(t, h.store.overrides, 1)
	assert.Equal(t, int64(10000), h.store.overrides[0].OldClientQuote)
	assert.Contains(t, h.audit.actions(), models.AuditActionSettlementOverride)
	assert.Empty(t, h.publisher.all())
}

func TestCancelRecordsRefundEligibility(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t,
		seedProject("assigned", models.ProjectStatusAssigned, deadline),
		seedProject("working", models.ProjectStatusInProgress, deadline),
	)
	ctx := context.Background()

	_, err := h.projects.Cancel(ctx, clientActor, "assigned", "")
	requireReasonCode(t, err, "REASON_REQUIRED")

	project, err := h.projects.Cancel(ctx, clientActor, "assigned", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCancelled, project.Status)
	assert.Equal(t, models.RefundFull, lo.FromPtr(project.RefundEligibility))

	project, err = h.projects.Cancel(ctx, supervisorActor, "working", "doer unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.RefundPartial, lo.FromPtr(project.RefundEligibility))

	_, err = h.projects.Cancel(ctx, clientActor, "working", "again")
	requireCode(t, err, appErrors.ErrInvalidTransition.Code)
}

func TestRefundRequiresQualityFailure(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	clean := seedProject("clean", models.ProjectStatusInRevision, deadline)
	failed := seedProject("failed", models.ProjectStatusInRevision, deadline)
	failed.QCRejectionCount = 1
	h := newProjectHarness(t, clean, failed)
	ctx := context.Background()

	_, err := h.projects.Refund(ctx, supervisorActor, "clean", "client unhappy")
	requireReasonCode(t, err, "NO_QC_FAILURE")

	_, err = h.projects.Refund(ctx, clientActor, "failed", "client unhappy")
	requireCode(t, err, appErrors.ErrForbidden.Code)

	project, err := h.projects.Refund(ctx, supervisorActor, "failed", "quality not recoverable")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusRefunded, project.Status)
}

func TestExtendDeadlineReschedulesApproval(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := seedProject("p1", models.ProjectStatusDelivered, deadline)
	delivered := deadline.Add(-time.Hour)
	seed.DeliveredAt = &delivered
	seed.AutoApproveAt = lo.ToPtr(deadline.Add(72 * time.Hour))
	h := newProjectHarness(t, seed)
	ctx := context.Background()

	_, err := h.projects.ExtendDeadline(ctx, supervisorActor, "p1", dto.ExtendDeadlineRequest{Deadline: deadline.Add(-time.Hour), Reason: "x"})
	requireCode(t, err, appErrors.ErrValidation.Code)

	extended := deadline.Add(48 * time.Hour)
	project, err := h.projects.ExtendDeadline(ctx, supervisorActor, "p1", dto.ExtendDeadlineRequest{Deadline: extended, Reason: "client asked for more sources"})
	require.NoError(t, err)
	assert.True(t, project.DeadlineExtended)
	assert.Equal(t, extended.Add(72*time.Hour), *project.AutoApproveAt)
	assert.Equal(t, models.ProjectStatusDelivered, project.Status)
}

func TestLifecycleMapsDeadlineToTimeout(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	h := newProjectHarness(t, seedProject("p1", models.ProjectStatusAssigned, deadline))
	h.store.applyErr = context.DeadlineExceeded

	_, err := h.projects.StartWork(context.Background(), doerActor, "p1")
	requireCode(t, err, appErrors.ErrTimeout.Code)

	h.store.applyErr = errors.New("connection reset")
	_, err = h.projects.StartWork(context.Background(), doerActor, "p1")
	requireCode(t, err, appErrors.ErrInternal.Code)
}

func TestListScopesSupervisors(t *testing.T) {
	deadline := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	unclaimed := seedProject("unclaimed", models.ProjectStatusSubmitted, deadline)
	unclaimed.SupervisorID = nil
	foreign := seedProject("foreign", models.ProjectStatusAnalyzing, deadline)
	foreign.SupervisorID = lo.ToPtr("sup-2")
	h := newProjectHarness(t, unclaimed, foreign, seedProject("mine", models.ProjectStatusPaid, deadline))
	ctx := context.Background()

	projects, err := h.projects.List(ctx, supervisorActor, dto.ProjectQuery{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mine", "unclaimed"}, lo.Map(projects, func(p models.Project, _ int) string { return p.ID }))

	_, err = h.projects.Get(ctx, supervisorActor, "foreign")
	requireCode(t, err, appErrors.ErrForbidden.Code)

	platform := NewProjectService(ProjectServiceParams{
		Store:     h.store,
		Lifecycle: h.lifecycle,
		Config:    ProjectServiceConfig{ListingScope: ListingScopePlatform},
	})
	projects, err = platform.List(ctx, supervisorActor, dto.ProjectQuery{})
	require.NoError(t, err)
	assert.Len(t, projects, 3)
}
