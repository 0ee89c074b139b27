// Package workflow is the single authority over project status changes.
//
// Every status change is decided by Decide, which maps (current status, action,
// role) to the full path of statuses the project moves through, or to an error
// that names the current status and the actions the caller could take instead.
// The package is pure: persistence and check-and-set live in the repository.
package workflow

import (
	"fmt"

	"github.com/noah-isme/assignx-api/internal/models"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

// Role is the closed set of parties able to act on a project.
type Role string

const (
	RoleClient     Role = "client"
	RoleSupervisor Role = "supervisor"
	RoleDoer       Role = "doer"
	RoleSystem     Role = "system"
)

// AllRoles lists every role.
var AllRoles = []Role{RoleClient, RoleSupervisor, RoleDoer, RoleSystem}

// RoleFromUser maps an authenticated user role to a workflow role.
// Admins act with supervisor authority.
func RoleFromUser(role models.UserRole) (Role, bool) {
	switch role {
	case models.RoleClient:
		return RoleClient, true
	case models.RoleSupervisor, models.RoleAdmin:
		return RoleSupervisor, true
	case models.RoleDoer:
		return RoleDoer, true
	default:
		return "", false
	}
}

// Action names an attempted operation on a project.
type Action string

const (
	ActionSubmit             Action = "submit"
	ActionStartAnalysis      Action = "start_analysis"
	ActionQuote              Action = "quote"
	ActionRequestPayment     Action = "request_payment"
	ActionConfirmPayment     Action = "confirm_payment"
	ActionStartAssigning     Action = "start_assigning"
	ActionProposeDoer        Action = "propose_doer"
	ActionAssign             Action = "assign"
	ActionAcceptAssignment   Action = "accept_assignment"
	ActionDeclineAssignment  Action = "decline_assignment"
	ActionStartWork          Action = "start_work"
	ActionSubmitWork         Action = "submit_work"
	ActionStartQC            Action = "start_qc"
	ActionRecordQCScores     Action = "record_qc_scores"
	ActionApproveQC          Action = "approve_qc"
	ActionRejectQC           Action = "reject_qc"
	ActionStartRevision      Action = "start_revision"
	ActionApproveDelivery    Action = "approve_delivery"
	ActionRequestRevision    Action = "request_revision"
	ActionAutoApprove        Action = "auto_approve"
	ActionCancel             Action = "cancel"
	ActionRefund             Action = "refund"
	ActionExtendDeadline     Action = "extend_deadline"
	ActionOverrideSettlement Action = "override_settlement"
)

// AllActions lists every action in lifecycle order.
var AllActions = []Action{
	ActionSubmit,
	ActionStartAnalysis,
	ActionQuote,
	ActionRequestPayment,
	ActionConfirmPayment,
	ActionStartAssigning,
	ActionProposeDoer,
	ActionAssign,
	ActionAcceptAssignment,
	ActionDeclineAssignment,
	ActionStartWork,
	ActionSubmitWork,
	ActionStartQC,
	ActionRecordQCScores,
	ActionApproveQC,
	ActionRejectQC,
	ActionStartRevision,
	ActionApproveDelivery,
	ActionRequestRevision,
	ActionAutoApprove,
	ActionCancel,
	ActionRefund,
	ActionExtendDeadline,
	ActionOverrideSettlement,
}

// Transition is an accepted decision. Path holds every status entered after
// From, ending with To; it is empty for actions that edit a project in place.
type Transition struct {
	Action Action
	Role   Role
	From   models.ProjectStatus
	To     models.ProjectStatus
	Path   []models.ProjectStatus
}

// ChangesStatus reports whether the transition moves the project.
func (t Transition) ChangesStatus() bool {
	return len(t.Path) > 0
}

// Hops returns consecutive (from, to) pairs along the path.
func (t Transition) Hops() [][2]models.ProjectStatus {
	hops := make([][2]models.ProjectStatus, 0, len(t.Path))
	prev := t.From
	for _, next := range t.Path {
		hops = append(hops, [2]models.ProjectStatus{prev, next})
		prev = next
	}
	return hops
}

type rule struct {
	path  []models.ProjectStatus
	roles []Role
}

func (r rule) allows(role Role) bool {
	for _, candidate := range r.roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func path(statuses ...models.ProjectStatus) []models.ProjectStatus {
	return statuses
}

func roles(rs ...Role) []Role {
	return rs
}

var terminal = map[models.ProjectStatus]bool{
	models.ProjectStatusCompleted:    true,
	models.ProjectStatusAutoApproved: true,
	models.ProjectStatusCancelled:    true,
	models.ProjectStatusRefunded:     true,
}

var prePayment = map[models.ProjectStatus]bool{
	models.ProjectStatusDraft:          true,
	models.ProjectStatusSubmitted:      true,
	models.ProjectStatusAnalyzing:      true,
	models.ProjectStatusQuoted:         true,
	models.ProjectStatusPaymentPending: true,
}

var fullRefund = map[models.ProjectStatus]bool{
	models.ProjectStatusPaid:      true,
	models.ProjectStatusAssigning: true,
	models.ProjectStatusAssigned:  true,
}

// table[action][from] is the rule for the action from that status.
var table = buildTable()

func buildTable() map[Action]map[models.ProjectStatus]rule {
	t := map[Action]map[models.ProjectStatus]rule{
		ActionSubmit: {
			models.ProjectStatusDraft: {path(models.ProjectStatusSubmitted), roles(RoleClient)},
		},
		ActionStartAnalysis: {
			models.ProjectStatusSubmitted: {path(models.ProjectStatusAnalyzing), roles(RoleSupervisor)},
		},
		ActionQuote: {
			models.ProjectStatusAnalyzing: {path(models.ProjectStatusQuoted), roles(RoleSupervisor)},
			models.ProjectStatusQuoted:    {nil, roles(RoleSupervisor)},
		},
		ActionRequestPayment: {
			models.ProjectStatusQuoted: {path(models.ProjectStatusPaymentPending), roles(RoleClient)},
		},
		ActionConfirmPayment: {
			models.ProjectStatusPaymentPending: {path(models.ProjectStatusPaid), roles(RoleSystem)},
		},
		ActionStartAssigning: {
			models.ProjectStatusPaid: {path(models.ProjectStatusAssigning), roles(RoleSupervisor)},
		},
		ActionProposeDoer: {
			models.ProjectStatusAssigning: {nil, roles(RoleSupervisor)},
		},
		ActionAssign: {
			models.ProjectStatusAssigning: {path(models.ProjectStatusAssigned), roles(RoleSupervisor)},
		},
		ActionAcceptAssignment: {
			models.ProjectStatusAssigning: {path(models.ProjectStatusAssigned), roles(RoleDoer)},
		},
		ActionDeclineAssignment: {
			models.ProjectStatusAssigning: {nil, roles(RoleDoer)},
		},
		ActionStartWork: {
			models.ProjectStatusAssigned: {path(models.ProjectStatusInProgress), roles(RoleDoer, RoleSystem)},
		},
		ActionSubmitWork: {
			models.ProjectStatusInProgress: {path(models.ProjectStatusSubmittedForQC), roles(RoleDoer)},
			models.ProjectStatusInRevision: {path(models.ProjectStatusSubmittedForQC), roles(RoleDoer)},
		},
		ActionStartQC: {
			models.ProjectStatusSubmittedForQC: {path(models.ProjectStatusQCInProgress), roles(RoleSupervisor)},
		},
		ActionRecordQCScores: {
			models.ProjectStatusSubmittedForQC: {nil, roles(RoleSupervisor)},
			models.ProjectStatusQCInProgress:   {nil, roles(RoleSupervisor)},
		},
		// A decision taken straight from submitted_for_qc still passes through qc_in_progress.
		// Decision statuses are only passed through; a row left in one is moved on by the system.
		ActionApproveQC: {
			models.ProjectStatusSubmittedForQC: {path(models.ProjectStatusQCInProgress, models.ProjectStatusQCApproved, models.ProjectStatusDelivered), roles(RoleSupervisor)},
			models.ProjectStatusQCInProgress:   {path(models.ProjectStatusQCApproved, models.ProjectStatusDelivered), roles(RoleSupervisor)},
			models.ProjectStatusQCApproved:     {path(models.ProjectStatusDelivered), roles(RoleSystem)},
		},
		ActionRejectQC: {
			models.ProjectStatusSubmittedForQC: {path(models.ProjectStatusQCInProgress, models.ProjectStatusQCRejected, models.ProjectStatusRevisionRequested), roles(RoleSupervisor)},
			models.ProjectStatusQCInProgress:   {path(models.ProjectStatusQCRejected, models.ProjectStatusRevisionRequested), roles(RoleSupervisor)},
			models.ProjectStatusQCRejected:     {path(models.ProjectStatusRevisionRequested), roles(RoleSystem)},
		},
		ActionStartRevision: {
			models.ProjectStatusRevisionRequested: {path(models.ProjectStatusInRevision), roles(RoleDoer)},
		},
		ActionApproveDelivery: {
			models.ProjectStatusDelivered: {path(models.ProjectStatusCompleted), roles(RoleClient)},
		},
		ActionRequestRevision: {
			models.ProjectStatusDelivered: {path(models.ProjectStatusRevisionRequested), roles(RoleClient)},
		},
		ActionAutoApprove: {
			models.ProjectStatusDelivered: {path(models.ProjectStatusAutoApproved, models.ProjectStatusCompleted), roles(RoleSystem)},
		},
		ActionCancel:             {},
		ActionRefund:             {},
		ActionExtendDeadline:     {},
		ActionOverrideSettlement: {},
	}

	for _, status := range models.AllProjectStatuses {
		if terminal[status] {
			continue
		}
		t[ActionCancel][status] = rule{path(models.ProjectStatusCancelled), roles(RoleClient, RoleSupervisor)}
		if !prePayment[status] {
			t[ActionRefund][status] = rule{path(models.ProjectStatusRefunded), roles(RoleSupervisor)}
			t[ActionExtendDeadline][status] = rule{nil, roles(RoleSupervisor)}
			t[ActionOverrideSettlement][status] = rule{nil, roles(RoleSupervisor)}
		}
	}
	return t
}

// Decide is the authoritative transition function.
func Decide(from models.ProjectStatus, action Action, role Role) (Transition, error) {
	if !from.Valid() {
		return Transition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown project status %q", from))
	}
	byStatus, ok := table[action]
	if !ok {
		return Transition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown action %q", action))
	}
	r, ok := byStatus[from]
	if !ok {
		return Transition{}, InvalidTransition(from, action, role)
	}
	if !r.allows(role) {
		return Transition{}, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s may not %s this project", role, action)),
			details(from, action, role),
		)
	}
	to := from
	if len(r.path) > 0 {
		to = r.path[len(r.path)-1]
	}
	return Transition{
		Action: action,
		Role:   role,
		From:   from,
		To:     to,
		Path:   append([]models.ProjectStatus(nil), r.path...),
	}, nil
}

// InvalidTransition builds the rejection returned when an action does not apply to a status.
func InvalidTransition(current models.ProjectStatus, action Action, role Role) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot %s a project in status %s", action, current)),
		details(current, action, role),
	)
}

// StateChanged builds the conflict returned to the loser of a concurrent transition.
func StateChanged(current models.ProjectStatus, action Action, role Role) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrStateChanged, fmt.Sprintf("project moved to %s before %s could be applied", current, action)),
		details(current, action, role),
	)
}

// WithState attaches the current status and the role's next actions to err.
func WithState(err *appErrors.Error, current models.ProjectStatus, action Action, role Role) *appErrors.Error {
	return appErrors.WithDetails(err, details(current, action, role))
}

// NotParty builds the rejection returned when the actor holds the right role
// but is not the client, supervisor or doer the action belongs to.
func NotParty(current models.ProjectStatus, action Action, role Role) error {
	return WithState(appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s is not a party to this project", role)), current, action, role)
}

func details(current models.ProjectStatus, action Action, role Role) map[string]interface{} {
	return map[string]interface{}{
		"current_status":   current,
		"attempted_action": action,
		"next_actions":     NextActions(current, role),
	}
}

// NextActions lists the actions the role may take from the status.
func NextActions(status models.ProjectStatus, role Role) []Action {
	actions := make([]Action, 0, 4)
	for _, action := range AllActions {
		if r, ok := table[action][status]; ok && r.allows(role) {
			actions = append(actions, action)
		}
	}
	return actions
}

// IsTerminal reports whether no further action applies to the status.
func IsTerminal(status models.ProjectStatus) bool {
	return terminal[status]
}

// AtOrBeyondPaid reports whether a project in the status has necessarily been
// paid. Cancelled is excluded since a cancellation may precede payment.
func AtOrBeyondPaid(status models.ProjectStatus) bool {
	return status.Valid() && !prePayment[status] && status != models.ProjectStatusCancelled
}

// RefundEligibility reports what cancelling from the status entitles the client to.
func RefundEligibility(status models.ProjectStatus) models.RefundEligibility {
	switch {
	case prePayment[status]:
		return models.RefundNone
	case fullRefund[status]:
		return models.RefundFull
	default:
		return models.RefundPartial
	}
}
