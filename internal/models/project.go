package models

import (
	"time"

	"github.com/noah-isme/assignx-api/pkg/settlement"
)

// ProjectStatus mirrors the project_status Postgres enum.
type ProjectStatus string

const (
	ProjectStatusDraft             ProjectStatus = "draft"
	ProjectStatusSubmitted         ProjectStatus = "submitted"
	ProjectStatusAnalyzing         ProjectStatus = "analyzing"
	ProjectStatusQuoted            ProjectStatus = "quoted"
	ProjectStatusPaymentPending    ProjectStatus = "payment_pending"
	ProjectStatusPaid              ProjectStatus = "paid"
	ProjectStatusAssigning         ProjectStatus = "assigning"
	ProjectStatusAssigned          ProjectStatus = "assigned"
	ProjectStatusInProgress        ProjectStatus = "in_progress"
	ProjectStatusSubmittedForQC    ProjectStatus = "submitted_for_qc"
	ProjectStatusQCInProgress      ProjectStatus = "qc_in_progress"
	ProjectStatusQCApproved        ProjectStatus = "qc_approved"
	ProjectStatusQCRejected        ProjectStatus = "qc_rejected"
	ProjectStatusDelivered         ProjectStatus = "delivered"
	ProjectStatusRevisionRequested ProjectStatus = "revision_requested"
	ProjectStatusInRevision        ProjectStatus = "in_revision"
	ProjectStatusCompleted         ProjectStatus = "completed"
	ProjectStatusAutoApproved      ProjectStatus = "auto_approved"
	ProjectStatusCancelled         ProjectStatus = "cancelled"
	ProjectStatusRefunded          ProjectStatus = "refunded"
)

// AllProjectStatuses lists the enum in lifecycle order.
var AllProjectStatuses = []ProjectStatus{
	ProjectStatusDraft,
	ProjectStatusSubmitted,
	ProjectStatusAnalyzing,
	ProjectStatusQuoted,
	ProjectStatusPaymentPending,
	ProjectStatusPaid,
	ProjectStatusAssigning,
	ProjectStatusAssigned,
	ProjectStatusInProgress,
	ProjectStatusSubmittedForQC,
	ProjectStatusQCInProgress,
	ProjectStatusQCApproved,
	ProjectStatusQCRejected,
	ProjectStatusDelivered,
	ProjectStatusRevisionRequested,
	ProjectStatusInRevision,
	ProjectStatusCompleted,
	ProjectStatusAutoApproved,
	ProjectStatusCancelled,
	ProjectStatusRefunded,
}

// Valid reports whether the status belongs to the enum.
func (s ProjectStatus) Valid() bool {
	for _, candidate := range AllProjectStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ServiceType enumerates the kinds of work a client can order.
type ServiceType string

const (
	ServiceTypeEssay        ServiceType = "essay"
	ServiceTypeResearch     ServiceType = "research_paper"
	ServiceTypeDissertation ServiceType = "dissertation"
	ServiceTypeProofreading ServiceType = "proofreading"
	ServiceTypeCoding       ServiceType = "coding"
	ServiceTypePresentation ServiceType = "presentation"
	ServiceTypeOther        ServiceType = "other"
)

// RefundEligibility records what a cancellation entitles the client to.
type RefundEligibility string

const (
	RefundNone    RefundEligibility = "none"
	RefundFull    RefundEligibility = "full"
	RefundPartial RefundEligibility = "partial"
)

// Project is the central assignment record whose status drives the workflow.
type Project struct {
	ID            string `db:"id" json:"id"`
	ProjectNumber string `db:"project_number" json:"projectNumber"`

	ServiceType   ServiceType               `db:"service_type" json:"serviceType"`
	Title         string                    `db:"title" json:"title"`
	Subject       string                    `db:"subject" json:"subject"`
	Instructions  string                    `db:"instructions" json:"instructions"`
	WordCount     int                       `db:"word_count" json:"wordCount"`
	PageCount     int                       `db:"page_count" json:"pageCount"`
	CitationStyle string                    `db:"citation_style" json:"citationStyle"`
	Urgency       settlement.UrgencyTier    `db:"urgency_tier" json:"urgencyTier"`
	Complexity    settlement.ComplexityTier `db:"complexity_tier" json:"complexityTier"`

	ClientID       string  `db:"client_id" json:"clientId"`
	SupervisorID   *string `db:"supervisor_id" json:"supervisorId,omitempty"`
	DoerID         *string `db:"doer_id" json:"doerId,omitempty"`
	ProposedDoerID *string `db:"proposed_doer_id" json:"proposedDoerId,omitempty"`

	BaseRate             int64  `db:"base_rate" json:"baseRate"`
	ClientQuote          *int64 `db:"client_quote" json:"clientQuote,omitempty"`
	DoerPayout           *int64 `db:"doer_payout" json:"doerPayout,omitempty"`
	SupervisorCommission *int64 `db:"supervisor_commission" json:"supervisorCommission,omitempty"`
	PlatformFee          *int64 `db:"platform_fee" json:"platformFee,omitempty"`
	PriceLocked          bool   `db:"price_locked" json:"priceLocked"`

	Status ProjectStatus `db:"status" json:"status"`

	Deadline                time.Time  `db:"deadline" json:"deadline"`
	DeadlineExtended        bool       `db:"deadline_extended" json:"deadlineExtended"`
	DeadlineExtensionReason *string    `db:"deadline_extension_reason" json:"deadlineExtensionReason,omitempty"`
	DeliveredAt             *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	CompletedAt             *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	PaidAt                  *time.Time `db:"paid_at" json:"paidAt,omitempty"`
	PaymentReference        *string    `db:"payment_reference" json:"paymentReference,omitempty"`

	PlagiarismScore    *float64   `db:"plagiarism_score" json:"plagiarismScore,omitempty"`
	PlagiarismChecked  bool       `db:"plagiarism_checked" json:"plagiarismChecked"`
	AIScore            *float64   `db:"ai_score" json:"aiScore,omitempty"`
	AIChecked          bool       `db:"ai_checked" json:"aiChecked"`
	QCScoresRecordedAt *time.Time `db:"qc_scores_recorded_at" json:"qcScoresRecordedAt,omitempty"`
	QCNotes            *string    `db:"qc_notes" json:"qcNotes,omitempty"`
	RevisionCount      int        `db:"revision_count" json:"revisionCount"`
	QCRejectionCount   int        `db:"qc_rejection_count" json:"qcRejectionCount"`
	LateSubmission     bool       `db:"late_submission" json:"lateSubmission"`
	SubmissionKey      *string    `db:"submission_key" json:"-"`

	ClientApproved    bool               `db:"client_approved" json:"clientApproved"`
	ClientFeedback    *string            `db:"client_feedback" json:"clientFeedback,omitempty"`
	ClientGrade       *int               `db:"client_grade" json:"clientGrade,omitempty"`
	AutoApproveAt     *time.Time         `db:"auto_approve_at" json:"autoApproveAt,omitempty"`
	AutoApproved      bool               `db:"auto_approved" json:"autoApproved"`
	CancelledAt       *time.Time         `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason      *string            `db:"cancel_reason" json:"cancelReason,omitempty"`
	RefundEligibility *RefundEligibility `db:"refund_eligibility" json:"refundEligibility,omitempty"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Settlement returns the stored split, or nil when it has not been computed.
func (p *Project) Settlement() *settlement.Result {
	if p == nil || p.ClientQuote == nil || p.DoerPayout == nil || p.SupervisorCommission == nil || p.PlatformFee == nil {
		return nil
	}
	return &settlement.Result{
		ClientQuote:          *p.ClientQuote,
		DoerPayout:           *p.DoerPayout,
		SupervisorCommission: *p.SupervisorCommission,
		PlatformFee:          *p.PlatformFee,
	}
}

// Count returns the billable unit count (words, falling back to pages).
func (p *Project) Count() int64 {
	if p.WordCount > 0 {
		return int64(p.WordCount)
	}
	return int64(p.PageCount)
}

// IsParty reports whether the user is client, supervisor or doer of the project.
func (p *Project) IsParty(userID string) bool {
	if userID == "" {
		return false
	}
	if p.ClientID == userID {
		return true
	}
	if p.SupervisorID != nil && *p.SupervisorID == userID {
		return true
	}
	return p.DoerID != nil && *p.DoerID == userID
}

// ProjectFilter constrains listing queries.
type ProjectFilter struct {
	Status       []ProjectStatus
	ClientID     string
	SupervisorID string
	DoerID       string
	// Unclaimed includes submitted projects without a supervisor.
	Unclaimed bool
	Limit     int
	Offset    int
}

// ProjectEvent is one hop in a project's status history.
type ProjectEvent struct {
	ID         string        `db:"id" json:"id"`
	ProjectID  string        `db:"project_id" json:"projectId"`
	FromStatus ProjectStatus `db:"from_status" json:"fromStatus"`
	ToStatus   ProjectStatus `db:"to_status" json:"toStatus"`
	Action     string        `db:"action" json:"action"`
	ActorID    string        `db:"actor_id" json:"actorId"`
	ActorRole  string        `db:"actor_role" json:"actorRole"`
	Reason     *string       `db:"reason" json:"reason,omitempty"`
	Payload    []byte        `db:"payload" json:"payload,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}
