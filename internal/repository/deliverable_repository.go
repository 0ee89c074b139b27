package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assignx-api/internal/models"
)

const deliverableColumns = `id, project_id, round, file_path, file_name, mime_type, size_bytes, uploaded_by, idempotency_key, created_at`

// DeliverableRepository persists uploaded work files.
type DeliverableRepository struct {
	db *sqlx.DB
}

// NewDeliverableRepository constructs the repository.
func NewDeliverableRepository(db *sqlx.DB) *DeliverableRepository {
	return &DeliverableRepository{db: db}
}

// Create inserts the deliverable. A repeated idempotency key leaves the
// existing row in place and returns it instead.
func (r *DeliverableRepository) Create(ctx context.Context, deliverable *models.Deliverable) (*models.Deliverable, bool, error) {
	if deliverable.ID == "" {
		deliverable.ID = uuid.NewString()
	}
	if deliverable.IdempotencyKey == "" {
		deliverable.IdempotencyKey = uuid.NewString()
	}
	if deliverable.CreatedAt.IsZero() {
		deliverable.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO deliverables (id, project_id, round, file_path, file_name, mime_type, size_bytes, uploaded_by, idempotency_key, created_at)
	VALUES (:id, :project_id, :round, :file_path, :file_name, :mime_type, :size_bytes, :uploaded_by, :idempotency_key, :created_at)
	ON CONFLICT (project_id, idempotency_key) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, deliverable)
	if err != nil {
		return nil, false, fmt.Errorf("create deliverable: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("check deliverable insert rows: %w", err)
	}
	if rows == 0 {
		existing, err := r.GetByKey(ctx, deliverable.ProjectID, deliverable.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return deliverable, true, nil
}

// GetByID fetches one deliverable.
func (r *DeliverableRepository) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	query := fmt.Sprintf("SELECT %s FROM deliverables WHERE id = $1", deliverableColumns)
	var deliverable models.Deliverable
	if err := r.db.GetContext(ctx, &deliverable, query, id); err != nil {
		return nil, err
	}
	return &deliverable, nil
}

// GetByKey fetches the deliverable uploaded with the idempotency key.
func (r *DeliverableRepository) GetByKey(ctx context.Context, projectID, key string) (*models.Deliverable, error) {
	query := fmt.Sprintf("SELECT %s FROM deliverables WHERE project_id = $1 AND idempotency_key = $2", deliverableColumns)
	var deliverable models.Deliverable
	if err := r.db.GetContext(ctx, &deliverable, query, projectID, key); err != nil {
		return nil, err
	}
	return &deliverable, nil
}

// ListByProject returns every deliverable for the project, latest round first.
func (r *DeliverableRepository) ListByProject(ctx context.Context, projectID string) ([]models.Deliverable, error) {
	query := fmt.Sprintf("SELECT %s FROM deliverables WHERE project_id = $1 ORDER BY round DESC, created_at DESC", deliverableColumns)
	var deliverables []models.Deliverable
	if err := r.db.SelectContext(ctx, &deliverables, query, projectID); err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	return deliverables, nil
}

// CountForRound reports how many files exist for a submission round.
func (r *DeliverableRepository) CountForRound(ctx context.Context, projectID string, round int) (int, error) {
	const query = `SELECT COUNT(*) FROM deliverables WHERE project_id = $1 AND round = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, projectID, round); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count deliverables: %w", err)
	}
	return count, nil
}
