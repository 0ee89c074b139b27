package models

import "time"

// QCDecision is the outcome of a quality review round.
type QCDecision string

const (
	QCDecisionApproved QCDecision = "approved"
	QCDecisionRejected QCDecision = "rejected"
)

// QCReview keeps every review decision so rejection reasons survive later rounds.
type QCReview struct {
	ID              string     `db:"id" json:"id"`
	ProjectID       string     `db:"project_id" json:"projectId"`
	Round           int        `db:"round" json:"round"`
	Decision        QCDecision `db:"decision" json:"decision"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	PlagiarismScore *float64   `db:"plagiarism_score" json:"plagiarismScore,omitempty"`
	AIScore         *float64   `db:"ai_score" json:"aiScore,omitempty"`
	ReviewerID      string     `db:"reviewer_id" json:"reviewerId"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
}

// Deliverable references an uploaded work file.
type Deliverable struct {
	ID             string    `db:"id" json:"id"`
	ProjectID      string    `db:"project_id" json:"projectId"`
	Round          int       `db:"round" json:"round"`
	FilePath       string    `db:"file_path" json:"-"`
	FileName       string    `db:"file_name" json:"fileName"`
	MimeType       string    `db:"mime_type" json:"mimeType"`
	SizeBytes      int64     `db:"size_bytes" json:"sizeBytes"`
	UploadedBy     string    `db:"uploaded_by" json:"uploadedBy"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotencyKey"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// BlacklistEntry bars a doer from a supervisor's projects.
type BlacklistEntry struct {
	SupervisorID string    `db:"supervisor_id" json:"supervisorId"`
	DoerID       string    `db:"doer_id" json:"doerId"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
