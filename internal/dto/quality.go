package dto

// QCScoresRequest records plagiarism and AI detection results. A nil score
// means the check was not run.
type QCScoresRequest struct {
	PlagiarismScore *float64 `json:"plagiarismScore" validate:"omitempty,min=0,max=100"`
	AIScore         *float64 `json:"aiScore" validate:"omitempty,min=0,max=100"`
	Notes           string   `json:"notes" validate:"max=4000"`
}

// QCApproveRequest optionally carries reviewer notes.
type QCApproveRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

// QCRejectRequest must explain what the doer has to fix.
type QCRejectRequest struct {
	Reason string `json:"reason" validate:"required,max=4000"`
}

// SubmitWorkRequest hands the current round to quality control.
type SubmitWorkRequest struct {
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=100"`
}

// UploadDeliverableRequest describes a file being stored.
type UploadDeliverableRequest struct {
	FileName       string
	MimeType       string
	SizeBytes      int64
	IdempotencyKey string
}

// DeliverableResponse exposes a stored file with a time-limited link.
type DeliverableResponse struct {
	ID          string `json:"id"`
	Round       int    `json:"round"`
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
	UploadedBy  string `json:"uploadedBy"`
	CreatedAt   string `json:"createdAt"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}
