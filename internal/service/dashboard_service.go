package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type dashboardRepository interface {
	StatusCounts(ctx context.Context, supervisorID string) ([]models.StatusCount, error)
	QCOutcomes(ctx context.Context, supervisorID string) (models.QCOutcomeCount, error)
	Completions(ctx context.Context, supervisorID string, from, to time.Time) (models.CompletionWindow, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
	Window   time.Duration
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Repo   dashboardRepository
	Cache  *CacheService
	Logger *zap.Logger
	Config DashboardServiceConfig
}

// DashboardService composes the supervisor workspace summary.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * 24 * time.Hour
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:   params.Repo,
		cache:  params.Cache,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
}

// Supervisor returns the summary for one supervisor and reports whether it came from cache.
func (s *DashboardService) Supervisor(ctx context.Context, actor Actor) (*dto.SupervisorDashboardResponse, bool, error) {
	if actor.Role != workflow.RoleSupervisor && !actor.Admin {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "dashboard is available to supervisors only")
	}
	if actor.UserID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "supervisor id is required")
	}
	// Keyed per hour so the trend windows roll forward without explicit invalidation.
	now := s.now().UTC().Truncate(time.Hour)
	cacheKey := fmt.Sprintf("dash:supervisor:%s:%s", actor.UserID, now.Format("2006010215"))
	return Fetch(ctx, s.cache, cacheKey, s.cfg.CacheTTL, func(ctx context.Context) (*dto.SupervisorDashboardResponse, error) {
		return s.compose(ctx, actor.UserID, now)
	})
}

// Invalidate drops cached summaries for the supervisor.
func (s *DashboardService) Invalidate(ctx context.Context, supervisorID string) {
	if s.cache == nil || supervisorID == "" {
		return
	}
	_ = s.cache.Invalidate(ctx, fmt.Sprintf("dash:supervisor:%s:*", supervisorID))
}

func (s *DashboardService) compose(ctx context.Context, supervisorID string, now time.Time) (*dto.SupervisorDashboardResponse, error) {
	var (
		counts   []models.StatusCount
		qc       models.QCOutcomeCount
		current  models.CompletionWindow
		previous models.CompletionWindow
	)
	currentFrom := now.Add(-s.cfg.Window)
	previousFrom := currentFrom.Add(-s.cfg.Window)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.repo.StatusCounts(gctx, supervisorID)
		return err
	})
	g.Go(func() (err error) {
		qc, err = s.repo.QCOutcomes(gctx, supervisorID)
		return err
	})
	g.Go(func() (err error) {
		current, err = s.repo.Completions(gctx, supervisorID, currentFrom, now)
		return err
	})
	g.Go(func() (err error) {
		previous, err = s.repo.Completions(gctx, supervisorID, previousFrom, currentFrom)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard")
	}

	active := 0
	for _, c := range counts {
		if !isClosedStatus(c.Status) && c.Status != models.ProjectStatusDraft {
			active += c.Count
		}
	}

	summary := &dto.SupervisorDashboardResponse{
		SupervisorID: supervisorID,
		ByStatus:     counts,
		Active:       active,
		QC: dto.QCSummary{
			Approved: qc.Approved,
			Rejected: qc.Rejected,
			PassRate: ratio(qc.Approved, qc.Approved+qc.Rejected),
		},
		Current:  current,
		Previous: previous,
		Trend: dto.TrendSummary{
			CompletedDelta: current.Completed - previous.Completed,
			EarningsDelta:  current.Earnings - previous.Earnings,
		},
	}
	if previous.Earnings > 0 {
		summary.Trend.EarningsChange = roundTwo(float64(current.Earnings-previous.Earnings) / float64(previous.Earnings) * 100)
	}
	return summary, nil
}

func isClosedStatus(status models.ProjectStatus) bool {
	switch status {
	case models.ProjectStatusCompleted, models.ProjectStatusAutoApproved,
		models.ProjectStatusCancelled, models.ProjectStatusRefunded:
		return true
	}
	return false
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return roundTwo(float64(part) / float64(total))
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
