package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assignx-api/internal/models"
)

// DashboardRepository exposes read-optimised aggregates for the supervisor workspace.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository instantiates the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// StatusCounts groups the supervisor's projects by status.
func (r *DashboardRepository) StatusCounts(ctx context.Context, supervisorID string) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM projects
	WHERE supervisor_id = $1 GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, supervisorID); err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	return counts, nil
}

// QCOutcomes counts review decisions taken on the supervisor's projects.
func (r *DashboardRepository) QCOutcomes(ctx context.Context, supervisorID string) (models.QCOutcomeCount, error) {
	const query = `SELECT
        COALESCE(SUM(CASE WHEN q.decision = 'approved' THEN 1 ELSE 0 END), 0) AS approved,
        COALESCE(SUM(CASE WHEN q.decision = 'rejected' THEN 1 ELSE 0 END), 0) AS rejected
        FROM qc_reviews q
        JOIN projects p ON p.id = q.project_id
        WHERE p.supervisor_id = $1`
	var outcome models.QCOutcomeCount
	if err := r.db.GetContext(ctx, &outcome, query, supervisorID); err != nil {
		return models.QCOutcomeCount{}, fmt.Errorf("query qc outcomes: %w", err)
	}
	return outcome, nil
}

// Completions aggregates projects completed in [from, to).
func (r *DashboardRepository) Completions(ctx context.Context, supervisorID string, from, to time.Time) (models.CompletionWindow, error) {
	const query = `SELECT COUNT(*) AS completed,
        COALESCE(SUM(supervisor_commission), 0) AS earnings,
        COALESCE(AVG(revision_count), 0)::FLOAT8 AS avg_revisions
        FROM projects
        WHERE supervisor_id = $1 AND status = $2 AND completed_at >= $3 AND completed_at < $4`
	var window models.CompletionWindow
	if err := r.db.GetContext(ctx, &window, query, supervisorID, models.ProjectStatusCompleted, from, to); err != nil {
		return models.CompletionWindow{}, fmt.Errorf("query completions: %w", err)
	}
	window.From = from
	window.To = to
	return window, nil
}
