package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type dueProjectLister interface {
	ListDueForAutoApproval(ctx context.Context, now time.Time, limit int) ([]models.Project, error)
}

// SweepResult summarises one auto approval pass.
type SweepResult struct {
	Examined int `json:"examined"`
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// AutoApprovalService completes deliveries the client left unanswered.
type AutoApprovalService struct {
	lifecycle *Lifecycle
	projects  dueProjectLister
	metrics   *MetricsService
	logger    *zap.Logger
	batchSize int
}

// NewAutoApprovalService constructs the sweeper.
func NewAutoApprovalService(lifecycle *Lifecycle, projects dueProjectLister, metrics *MetricsService, logger *zap.Logger, batchSize int) *AutoApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AutoApprovalService{lifecycle: lifecycle, projects: projects, metrics: metrics, logger: logger, batchSize: batchSize}
}

// Sweep approves every delivered project whose timer expired at now. Projects
// the client acted on first are skipped, so repeated runs change nothing.
func (s *AutoApprovalService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	due, err := s.projects.ListDueForAutoApproval(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("auto approval sweep failed", zap.Error(err))
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects due for auto approval")
	}

	for i := range due {
		project := due[i]
		result.Examined++
		if project.Status != models.ProjectStatusDelivered || project.AutoApproveAt == nil || project.AutoApproveAt.After(now) {
			result.Skipped++
			continue
		}
		if err := s.approve(ctx, &project, now); err != nil {
			if errors.Is(err, appErrors.ErrStateChanged) || errors.Is(err, appErrors.ErrInvalidTransition) {
				result.Skipped++
				continue
			}
			result.Failed++
			s.logger.Error("auto approval failed", zap.String("project_id", project.ID), zap.Error(err))
			continue
		}
		result.Approved++
	}

	s.metrics.RecordSweep(result.Approved)
	if result.Approved > 0 || result.Failed > 0 {
		s.logger.Info("auto approval sweep finished",
			zap.Int("examined", result.Examined),
			zap.Int("approved", result.Approved),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *AutoApprovalService) approve(ctx context.Context, project *models.Project, now time.Time) error {
	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()
	_, err := s.lifecycle.applyTo(ctx, SystemActor, project, workflow.ActionAutoApprove, func(project *models.Project, _ workflow.Transition) (*change, error) {
		payouts, err := completionPayouts(project)
		if err != nil {
			return nil, err
		}
		return &change{
			set: map[string]interface{}{
				"auto_approved":   true,
				"completed_at":    now.UTC(),
				"auto_approve_at": nil,
			},
			payouts: payouts,
			dueBy:   &now,
		}, nil
	})
	return err
}
