package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assignx-api/internal/models"
)

// PaymentFlagRepository records payment confirmations that failed reconciliation.
type PaymentFlagRepository struct {
	db *sqlx.DB
}

// NewPaymentFlagRepository constructs the repository.
func NewPaymentFlagRepository(db *sqlx.DB) *PaymentFlagRepository {
	return &PaymentFlagRepository{db: db}
}

// Create inserts a flag row.
func (r *PaymentFlagRepository) Create(ctx context.Context, flag *models.PaymentFlag) error {
	if flag.ID == "" {
		flag.ID = uuid.NewString()
	}
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payment_flags (id, project_id, expected_amount, received_amount, payment_reference, created_at)
	VALUES (:id, :project_id, :expected_amount, :received_amount, :payment_reference, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, flag); err != nil {
		return fmt.Errorf("create payment flag: %w", err)
	}
	return nil
}

// ListByProject returns flags raised for the project.
func (r *PaymentFlagRepository) ListByProject(ctx context.Context, projectID string) ([]models.PaymentFlag, error) {
	const query = `SELECT id, project_id, expected_amount, received_amount, payment_reference, created_at
	FROM payment_flags WHERE project_id = $1 ORDER BY created_at DESC`
	var flags []models.PaymentFlag
	if err := r.db.SelectContext(ctx, &flags, query, projectID); err != nil {
		return nil, fmt.Errorf("list payment flags: %w", err)
	}
	return flags, nil
}
