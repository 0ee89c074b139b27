package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

// QualityService is the supervisor review gate between submission and delivery.
type QualityService struct {
	lifecycle *Lifecycle
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQualityService constructs the quality gate.
func NewQualityService(lifecycle *Lifecycle, validate *validator.Validate, logger *zap.Logger) *QualityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualityService{lifecycle: lifecycle, validator: validate, logger: logger}
}

// StartReview picks up a submission.
func (s *QualityService) StartReview(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionStartQC, nil)
}

// RecordScores stores plagiarism and AI detection results. A nil score is
// recorded as "not checked".
func (s *QualityService) RecordScores(ctx context.Context, actor Actor, projectID string, req dto.QCScoresRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionRecordQCScores, func(*models.Project, workflow.Transition) (*change, error) {
		set := map[string]interface{}{
			"plagiarism_score":      req.PlagiarismScore,
			"plagiarism_checked":    req.PlagiarismScore != nil,
			"ai_score":              req.AIScore,
			"ai_checked":            req.AIScore != nil,
			"qc_scores_recorded_at": s.lifecycle.now().UTC(),
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			set["qc_notes"] = notes
		}
		return &change{set: set, payload: req}, nil
	})
}

// Approve delivers the work to the client and starts the approval timer.
func (s *QualityService) Approve(ctx context.Context, actor Actor, projectID string, req dto.QCApproveRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionApproveQC, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if project.QCScoresRecordedAt == nil {
			return nil, appErrors.Precondition("QC_SCORES_MISSING", "plagiarism and AI scores must be recorded before approval")
		}
		now := s.lifecycle.now().UTC()
		set := map[string]interface{}{
			"delivered_at":          now,
			"auto_approve_at":       s.lifecycle.autoApproveAt(project.Deadline, now),
			"qc_scores_recorded_at": nil,
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			set["qc_notes"] = notes
		}
		return &change{
			set:      set,
			qcReview: reviewFor(project, actor, models.QCDecisionApproved, nil),
		}, nil
	})
}

// Reject sends the work back to the doer with a mandatory reason.
func (s *QualityService) Reject(ctx context.Context, actor Actor, projectID string, req dto.QCRejectRequest) (*models.Project, error) {
	return s.lifecycle.apply(ctx, actor, projectID, workflow.ActionRejectQC, func(project *models.Project, _ workflow.Transition) (*change, error) {
		reason, err := requireReason(req.Reason)
		if err != nil {
			return nil, err
		}
		if len(*reason) > 4000 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reason is too long")
		}
		return &change{
			set:       map[string]interface{}{"qc_scores_recorded_at": nil},
			increment: []string{"qc_rejection_count"},
			reason:    reason,
			qcReview:  reviewFor(project, actor, models.QCDecisionRejected, reason),
		}, nil
	})
}

// Resume moves a project left in qc_approved or qc_rejected on to the status
// that decision leads to. Only admins may call it; the hop is recorded as a
// system transition under the admin's id.
func (s *QualityService) Resume(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	if !actor.Admin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can resume a quality decision")
	}
	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()

	project, err := s.lifecycle.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	system := Actor{UserID: actor.UserID, Role: workflow.RoleSystem}
	switch project.Status {
	case models.ProjectStatusQCApproved:
		return s.lifecycle.applyTo(ctx, system, project, workflow.ActionApproveQC, func(project *models.Project, _ workflow.Transition) (*change, error) {
			now := s.lifecycle.now().UTC()
			return &change{set: map[string]interface{}{
				"delivered_at":    now,
				"auto_approve_at": s.lifecycle.autoApproveAt(project.Deadline, now),
			}}, nil
		})
	case models.ProjectStatusQCRejected:
		return s.lifecycle.applyTo(ctx, system, project, workflow.ActionRejectQC, nil)
	default:
		return nil, s.lifecycle.reject(ctx, system, project, workflow.ActionRejectQC,
			workflow.InvalidTransition(project.Status, workflow.ActionRejectQC, workflow.RoleSystem))
	}
}

// reviewFor records the decision for the current work round.
func reviewFor(project *models.Project, actor Actor, decision models.QCDecision, reason *string) *models.QCReview {
	return &models.QCReview{
		Round:           project.RevisionCount + 1,
		Decision:        decision,
		Reason:          reason,
		PlagiarismScore: project.PlagiarismScore,
		AIScore:         project.AIScore,
		ReviewerID:      actor.UserID,
	}
}
