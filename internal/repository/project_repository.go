package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/pkg/settlement"
)

const projectColumns = `id, project_number, service_type, title, subject, instructions, word_count, page_count,
       citation_style, urgency_tier, complexity_tier, client_id, supervisor_id, doer_id, proposed_doer_id,
       base_rate, client_quote, doer_payout, supervisor_commission, platform_fee, price_locked, status,
       deadline, deadline_extended, deadline_extension_reason, delivered_at, completed_at, paid_at, payment_reference,
       plagiarism_score, plagiarism_checked, ai_score, ai_checked, qc_scores_recorded_at, qc_notes,
       revision_count, qc_rejection_count, late_submission, submission_key,
       client_approved, client_feedback, client_grade, auto_approve_at, auto_approved,
       cancelled_at, cancel_reason, refund_eligibility, version, created_at, updated_at`

const projectEventColumns = `id, project_id, from_status, to_status, action, actor_id, actor_role, reason, payload, created_at`

// Actor predicates narrow a transition UPDATE to rows the caller is party to.
const (
	ActorAny          = ""
	ActorClient       = "client_id"
	ActorSupervisor   = "supervisor_id"
	ActorDoer         = "doer_id"
	ActorProposedDoer = "proposed_doer_id"
	// ActorClaimSupervisor matches an unclaimed project or one the actor already supervises.
	ActorClaimSupervisor = "claim_supervisor"
)

// ProjectRepository persists projects and their transition history.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a draft project and assigns its human readable number.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.Status == "" {
		project.Status = models.ProjectStatusDraft
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = project.CreatedAt
	project.Version = 1

	const query = `INSERT INTO projects
	(id, project_number, service_type, title, subject, instructions, word_count, page_count, citation_style,
	 urgency_tier, complexity_tier, client_id, base_rate, status, deadline, version, created_at, updated_at)
	VALUES ($1, 'AX-' || lpad(nextval('project_number_seq')::text, 5, '0'), $2, $3, $4, $5, $6, $7, $8,
	 $9, $10, $11, $12, $13, $14, $15, $16, $16)
	RETURNING project_number`
	err := r.db.QueryRowxContext(ctx, query,
		project.ID, project.ServiceType, project.Title, project.Subject, project.Instructions,
		project.WordCount, project.PageCount, project.CitationStyle,
		project.Urgency, project.Complexity, project.ClientID, project.BaseRate, project.Status,
		project.Deadline, project.Version, project.CreatedAt,
	).Scan(&project.ProjectNumber)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetByID fetches a project by identifier.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = $1", projectColumns)
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// List returns projects matching the filter, newest first. Party fields are
// combined with OR so a user sees every project they take part in.
func (r *ProjectRepository) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM projects", projectColumns))

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	parties := make([]string, 0, 4)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		parties = append(parties, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		parties = append(parties, fmt.Sprintf("supervisor_id = $%d", len(args)))
	}
	if filter.DoerID != "" {
		args = append(args, filter.DoerID)
		parties = append(parties, fmt.Sprintf("(doer_id = $%d OR proposed_doer_id = $%d)", len(args), len(args)))
	}
	if filter.Unclaimed {
		parties = append(parties, fmt.Sprintf("(supervisor_id IS NULL AND status = '%s')", models.ProjectStatusSubmitted))
	}
	if len(parties) > 0 {
		conditions = append(conditions, "("+strings.Join(parties, " OR ")+")")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListDueForAutoApproval returns delivered projects whose approval window has closed.
func (r *ProjectRepository) ListDueForAutoApproval(ctx context.Context, now time.Time, limit int) ([]models.Project, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM projects
	WHERE status = $1 AND auto_approve_at IS NOT NULL AND auto_approve_at <= $2
	ORDER BY auto_approve_at ASC LIMIT $3`, projectColumns)
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, models.ProjectStatusDelivered, now, limit); err != nil {
		return nil, fmt.Errorf("list projects due for auto approval: %w", err)
	}
	return projects, nil
}

// History returns the project's events in the order they happened.
func (r *ProjectRepository) History(ctx context.Context, projectID string) ([]models.ProjectEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM project_events WHERE project_id = $1 ORDER BY created_at ASC, seq ASC", projectEventColumns)
	var events []models.ProjectEvent
	if err := r.db.SelectContext(ctx, &events, query, projectID); err != nil {
		return nil, fmt.Errorf("list project events: %w", err)
	}
	return events, nil
}

// QCReviews returns every review round recorded for the project.
func (r *ProjectRepository) QCReviews(ctx context.Context, projectID string) ([]models.QCReview, error) {
	const query = `SELECT id, project_id, round, decision, reason, plagiarism_score, ai_score, reviewer_id, created_at
	FROM qc_reviews WHERE project_id = $1 ORDER BY round ASC`
	var reviews []models.QCReview
	if err := r.db.SelectContext(ctx, &reviews, query, projectID); err != nil {
		return nil, fmt.Errorf("list qc reviews: %w", err)
	}
	return reviews, nil
}

// Payouts returns the settlement payouts released for the project.
func (r *ProjectRepository) Payouts(ctx context.Context, projectID string) ([]models.SettlementPayout, error) {
	const query = `SELECT project_id, kind, beneficiary_id, amount, created_at
	FROM settlement_payouts WHERE project_id = $1 ORDER BY kind ASC`
	var payouts []models.SettlementPayout
	if err := r.db.SelectContext(ctx, &payouts, query, projectID); err != nil {
		return nil, fmt.Errorf("list settlement payouts: %w", err)
	}
	return payouts, nil
}

// TransitionParams describes one check-and-set change of a project row.
type TransitionParams struct {
	ProjectID string
	Expected  models.ProjectStatus
	Target    models.ProjectStatus
	// Hops lists every (from, to) pair entered; empty for in-place edits.
	Hops      [][2]models.ProjectStatus
	Action    string
	ActorID   string
	ActorRole string
	Reason    *string
	Payload   []byte

	// ActorColumn restricts the update to rows where that column equals ActorID.
	ActorColumn string
	// ExcludeBlacklisted rejects the update when this doer is barred by the project's supervisor.
	ExcludeBlacklisted *string
	// DueBy requires a pending approval timer that expired at or before this instant.
	DueBy *time.Time

	Set       map[string]interface{}
	Increment []string

	QCReview *models.QCReview
	Payouts  []models.SettlementPayout
	Override *models.SettlementOverride
}

// ApplyTransition writes the status change, its events and side rows in one
// transaction. It returns sql.ErrNoRows when the row no longer matches the
// expected status or the actor predicate, and ErrColumnNotWritable when the
// actor role does not own a column being changed.
func (r *ProjectRepository) ApplyTransition(ctx context.Context, params TransitionParams) (project *models.Project, err error) {
	if err = params.CheckColumns(); err != nil {
		return nil, err
	}
	if params.Settlement() != nil {
		if verr := settlement.Verify(*params.Settlement()); verr != nil {
			return nil, fmt.Errorf("refuse to persist settlement: %w", verr)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin project transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	query, args := buildTransitionUpdate(params, now)
	var updated models.Project
	if err = tx.QueryRowxContext(ctx, query, args...).StructScan(&updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update project status: %w", err)
	}

	if err = insertEvents(ctx, tx, params, now); err != nil {
		return nil, err
	}
	if params.QCReview != nil {
		review := params.QCReview
		if review.ID == "" {
			review.ID = uuid.NewString()
		}
		review.ProjectID = params.ProjectID
		review.CreatedAt = now
		const insertReview = `INSERT INTO qc_reviews (id, project_id, round, decision, reason, plagiarism_score, ai_score, reviewer_id, created_at)
		VALUES (:id, :project_id, :round, :decision, :reason, :plagiarism_score, :ai_score, :reviewer_id, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertReview, review); err != nil {
			return nil, fmt.Errorf("insert qc review: %w", err)
		}
	}
	for i := range params.Payouts {
		payout := params.Payouts[i]
		payout.ProjectID = params.ProjectID
		payout.CreatedAt = now
		const insertPayout = `INSERT INTO settlement_payouts (project_id, kind, beneficiary_id, amount, created_at)
		VALUES (:project_id, :kind, :beneficiary_id, :amount, :created_at)
		ON CONFLICT (project_id, kind) DO NOTHING`
		if _, err = tx.NamedExecContext(ctx, insertPayout, payout); err != nil {
			return nil, fmt.Errorf("insert settlement payout: %w", err)
		}
	}
	if params.Override != nil {
		override := params.Override
		if override.ID == "" {
			override.ID = uuid.NewString()
		}
		override.ProjectID = params.ProjectID
		override.CreatedAt = now
		const insertOverride = `INSERT INTO settlement_overrides
		(id, project_id, old_client_quote, old_doer_payout, old_supervisor_commission, old_platform_fee,
		 new_client_quote, new_doer_payout, new_supervisor_commission, new_platform_fee, reason, actor_id, created_at)
		VALUES (:id, :project_id, :old_client_quote, :old_doer_payout, :old_supervisor_commission, :old_platform_fee,
		 :new_client_quote, :new_doer_payout, :new_supervisor_commission, :new_platform_fee, :reason, :actor_id, :created_at)`
		if _, err = tx.NamedExecContext(ctx, insertOverride, override); err != nil {
			return nil, fmt.Errorf("insert settlement override: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit project transition: %w", err)
	}
	return &updated, nil
}

// Settlement returns the split being written, if the update sets one.
func (p TransitionParams) Settlement() *settlement.Result {
	quote, ok1 := p.Set["client_quote"].(int64)
	doer, ok2 := p.Set["doer_payout"].(int64)
	supervisor, ok3 := p.Set["supervisor_commission"].(int64)
	fee, ok4 := p.Set["platform_fee"].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	return &settlement.Result{ClientQuote: quote, DoerPayout: doer, SupervisorCommission: supervisor, PlatformFee: fee}
}

func buildTransitionUpdate(params TransitionParams, now time.Time) (string, []interface{}) {
	args := []interface{}{params.Target, now}
	setParts := []string{"status = $1", "updated_at = $2", "version = version + 1"}

	columns := lo.Keys(params.Set)
	sort.Strings(columns)
	for _, column := range columns {
		args = append(args, params.Set[column])
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	for _, column := range lo.Uniq(params.Increment) {
		setParts = append(setParts, fmt.Sprintf("%s = %s + 1", column, column))
	}

	args = append(args, params.ProjectID)
	conditions := []string{fmt.Sprintf("id = $%d", len(args))}
	args = append(args, params.Expected)
	conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))

	switch params.ActorColumn {
	case ActorAny:
	case ActorClaimSupervisor:
		args = append(args, params.ActorID)
		conditions = append(conditions, fmt.Sprintf("(supervisor_id IS NULL OR supervisor_id = $%d)", len(args)))
	default:
		args = append(args, params.ActorID)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", params.ActorColumn, len(args)))
	}
	if params.ExcludeBlacklisted != nil {
		args = append(args, *params.ExcludeBlacklisted)
		conditions = append(conditions, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM doer_blacklist b WHERE b.supervisor_id = projects.supervisor_id AND b.doer_id = $%d)", len(args)))
	}

	if params.DueBy != nil {
		args = append(args, *params.DueBy)
		conditions = append(conditions, fmt.Sprintf("auto_approve_at IS NOT NULL AND auto_approve_at <= $%d", len(args)))
	}

	query := fmt.Sprintf("UPDATE projects SET %s WHERE %s RETURNING %s",
		strings.Join(setParts, ", "), strings.Join(conditions, " AND "), projectColumns)
	return query, args
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, params TransitionParams, now time.Time) error {
	hops := params.Hops
	if len(hops) == 0 {
		hops = [][2]models.ProjectStatus{{params.Expected, params.Target}}
	}
	const insertEvent = `INSERT INTO project_events (id, project_id, from_status, to_status, action, actor_id, actor_role, reason, payload, created_at)
	VALUES (:id, :project_id, :from_status, :to_status, :action, :actor_id, :actor_role, :reason, :payload, :created_at)`
	for _, hop := range hops {
		event := models.ProjectEvent{
			ID:         uuid.NewString(),
			ProjectID:  params.ProjectID,
			FromStatus: hop[0],
			ToStatus:   hop[1],
			Action:     params.Action,
			ActorID:    params.ActorID,
			ActorRole:  params.ActorRole,
			Reason:     params.Reason,
			Payload:    params.Payload,
			CreatedAt:  now,
		}
		if _, err := tx.NamedExecContext(ctx, insertEvent, event); err != nil {
			return fmt.Errorf("insert project event: %w", err)
		}
	}
	return nil
}
