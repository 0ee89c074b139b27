package dto

import "github.com/noah-isme/assignx-api/internal/models"

// SupervisorDashboardResponse summarises a supervisor's workspace.
type SupervisorDashboardResponse struct {
	SupervisorID string                  `json:"supervisorId"`
	ByStatus     []models.StatusCount    `json:"byStatus"`
	Active       int                     `json:"active"`
	QC           QCSummary               `json:"qc"`
	Current      models.CompletionWindow `json:"current"`
	Previous     models.CompletionWindow `json:"previous"`
	Trend        TrendSummary            `json:"trend"`
}

// QCSummary aggregates review outcomes.
type QCSummary struct {
	Approved int     `json:"approved"`
	Rejected int     `json:"rejected"`
	PassRate float64 `json:"passRate"`
}

// TrendSummary compares the current window with the previous one.
type TrendSummary struct {
	CompletedDelta int     `json:"completedDelta"`
	EarningsDelta  int64   `json:"earningsDelta"`
	EarningsChange float64 `json:"earningsChangePct"`
}
