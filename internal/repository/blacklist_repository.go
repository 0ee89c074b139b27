package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assignx-api/internal/models"
)

// BlacklistRepository stores doers a supervisor refuses to work with.
type BlacklistRepository struct {
	db *sqlx.DB
}

// NewBlacklistRepository constructs the repository.
func NewBlacklistRepository(db *sqlx.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Add inserts or refreshes an entry.
func (r *BlacklistRepository) Add(ctx context.Context, entry *models.BlacklistEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO doer_blacklist (supervisor_id, doer_id, reason, created_at)
	VALUES (:supervisor_id, :doer_id, :reason, :created_at)
	ON CONFLICT (supervisor_id, doer_id) DO UPDATE SET reason = EXCLUDED.reason`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("add blacklist entry: %w", err)
	}
	return nil
}

// Remove deletes an entry; removing a missing entry is not an error.
func (r *BlacklistRepository) Remove(ctx context.Context, supervisorID, doerID string) error {
	const query = `DELETE FROM doer_blacklist WHERE supervisor_id = $1 AND doer_id = $2`
	if _, err := r.db.ExecContext(ctx, query, supervisorID, doerID); err != nil {
		return fmt.Errorf("remove blacklist entry: %w", err)
	}
	return nil
}

// List returns the supervisor's entries.
func (r *BlacklistRepository) List(ctx context.Context, supervisorID string) ([]models.BlacklistEntry, error) {
	const query = `SELECT supervisor_id, doer_id, reason, created_at FROM doer_blacklist
	WHERE supervisor_id = $1 ORDER BY created_at DESC`
	var entries []models.BlacklistEntry
	if err := r.db.SelectContext(ctx, &entries, query, supervisorID); err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	return entries, nil
}

// Exists reports whether the doer is barred by the supervisor.
func (r *BlacklistRepository) Exists(ctx context.Context, supervisorID, doerID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM doer_blacklist WHERE supervisor_id = $1 AND doer_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, supervisorID, doerID); err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}
