package models

import "time"

// StatusCount is the number of projects in one status.
type StatusCount struct {
	Status ProjectStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}

// QCOutcomeCount aggregates review decisions.
type QCOutcomeCount struct {
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
}

// CompletionWindow aggregates completed projects over a time window.
type CompletionWindow struct {
	From         time.Time `db:"-" json:"from"`
	To           time.Time `db:"-" json:"to"`
	Completed    int       `db:"completed" json:"completed"`
	Earnings     int64     `db:"earnings" json:"earnings"`
	AvgRevisions float64   `db:"avg_revisions" json:"avgRevisions"`
}
