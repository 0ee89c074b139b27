package repository

import (
	"errors"
	"fmt"
	"sort"
)

// ErrColumnNotWritable is returned when a transition touches a column its actor role does not own.
var ErrColumnNotWritable = errors.New("column not writable by actor role")

func columns(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// writableColumns lists the project columns each party may change through a transition.
// Admins act with the supervisor role.
var writableColumns = map[string]map[string]struct{}{
	"client": columns(
		"client_approved", "client_feedback", "client_grade", "completed_at", "auto_approve_at",
		"cancelled_at", "cancel_reason", "refund_eligibility",
	),
	"supervisor": columns(
		"supervisor_id", "base_rate", "urgency_tier", "complexity_tier", "client_quote",
		"doer_id", "proposed_doer_id",
		"deadline", "deadline_extended", "deadline_extension_reason", "auto_approve_at",
		"doer_payout", "supervisor_commission", "platform_fee",
		"refund_eligibility", "cancelled_at", "cancel_reason",
		"plagiarism_score", "plagiarism_checked", "ai_score", "ai_checked", "qc_scores_recorded_at", "qc_notes",
		"delivered_at", "qc_rejection_count",
	),
	"doer": columns(
		"doer_id", "proposed_doer_id", "submission_key", "late_submission", "revision_count",
	),
	"system": columns(
		"client_quote", "doer_payout", "supervisor_commission", "platform_fee", "price_locked",
		"paid_at", "payment_reference", "auto_approved", "completed_at", "auto_approve_at",
		"delivered_at",
	),
}

// CheckColumns rejects a transition that sets or increments a column outside the actor role's scope.
func (p TransitionParams) CheckColumns() error {
	if len(p.Set) == 0 && len(p.Increment) == 0 {
		return nil
	}
	allowed, ok := writableColumns[p.ActorRole]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrColumnNotWritable, p.ActorRole)
	}
	var denied []string
	for column := range p.Set {
		if _, ok := allowed[column]; !ok {
			denied = append(denied, column)
		}
	}
	for _, column := range p.Increment {
		if _, ok := allowed[column]; !ok {
			denied = append(denied, column)
		}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		return fmt.Errorf("%w: %s may not write %v", ErrColumnNotWritable, p.ActorRole, denied)
	}
	return nil
}
