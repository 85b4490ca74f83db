package workflow

import (
	"fmt"

	"github.com/noah-isme/demandes-api/internal/models"
)

// Rule is one row of the transition table.
type Rule struct {
	Action   Action
	From     []models.DemandeStatus
	Roles    []models.UserRole
	To       models.DemandeStatus
	internal bool
}

var table = []Rule{
	{
		Action: ActionSubmit,
		From:   []models.DemandeStatus{models.StatusReturned, models.StatusComplementRequested},
		Roles:  []models.UserRole{models.RoleRequester, models.RoleAdministrator},
		To:     models.StatusSubmitted,
	},
	{
		Action: ActionStartFieldReview,
		From:   []models.DemandeStatus{models.StatusSubmitted, models.StatusReassigned},
		Roles:  []models.UserRole{models.RoleFieldAuthority},
		To:     models.StatusUnderFieldReview,
	},
	{
		Action: ActionValidateField,
		From:   []models.DemandeStatus{models.StatusSubmitted, models.StatusUnderFieldReview, models.StatusReassigned},
		Roles:  []models.UserRole{models.RoleFieldAuthority},
		To:     models.StatusFieldValidated,
	},
	{
		Action: ActionTransmitToDirectorate,
		From:   []models.DemandeStatus{models.StatusFieldValidated},
		Roles:  []models.UserRole{models.RoleFieldAuthority, models.RoleAdministrator},
		To:     models.StatusTransmittedToDirectorate,
	},
	{
		Action: ActionStartDirectorateReview,
		From:   []models.DemandeStatus{models.StatusTransmittedToDirectorate},
		Roles:  []models.UserRole{models.RoleGeneralDirectorate},
		To:     models.StatusUnderDirectorateReview,
	},
	{
		Action: ActionValidateDirectorate,
		From:   []models.DemandeStatus{models.StatusTransmittedToDirectorate, models.StatusUnderDirectorateReview},
		Roles:  []models.UserRole{models.RoleGeneralDirectorate},
		To:     models.StatusDirectorateValidated,
	},
	{
		Action: ActionTransmitToMinister,
		From:   []models.DemandeStatus{models.StatusDirectorateValidated},
		Roles:  []models.UserRole{models.RoleGeneralDirectorate, models.RoleAdministrator},
		To:     models.StatusTransmittedToMinister,
	},
	{
		Action: ActionRequestAdvisory,
		From: []models.DemandeStatus{
			models.StatusTransmittedToDirectorate,
			models.StatusUnderDirectorateReview,
			models.StatusDirectorateValidated,
			models.StatusTransmittedToMinister,
		},
		Roles: []models.UserRole{models.RoleGeneralDirectorate, models.RoleMinister, models.RoleAdministrator},
		To:    models.StatusPendingAdvisory,
	},
	{
		Action:   ActionAdvisoryForward,
		From:     []models.DemandeStatus{models.StatusPendingAdvisory},
		Roles:    []models.UserRole{models.RoleSystem},
		To:       models.StatusPendingMinisterSignature,
		internal: true,
	},
	{
		Action:   ActionAdvisoryReturn,
		From:     []models.DemandeStatus{models.StatusPendingAdvisory},
		Roles:    []models.UserRole{models.RoleSystem},
		To:       models.StatusUnderDirectorateReview,
		internal: true,
	},
	{
		Action: ActionReassign,
		From:   []models.DemandeStatus{models.StatusSubmitted, models.StatusUnderFieldReview, models.StatusFieldValidated},
		Roles:  []models.UserRole{models.RoleGeneralDirectorate, models.RoleAdministrator},
		To:     models.StatusReassigned,
	},
	{
		Action: ActionRequestComplement,
		From: []models.DemandeStatus{
			models.StatusSubmitted,
			models.StatusUnderFieldReview,
			models.StatusTransmittedToDirectorate,
			models.StatusUnderDirectorateReview,
		},
		Roles: []models.UserRole{models.RoleFieldAuthority, models.RoleGeneralDirectorate},
		To:    models.StatusComplementRequested,
	},
	{
		Action: ActionReturn,
		From: []models.DemandeStatus{
			models.StatusUnderFieldReview,
			models.StatusFieldValidated,
			models.StatusUnderDirectorateReview,
			models.StatusDirectorateValidated,
			models.StatusTransmittedToMinister,
			models.StatusPendingMinisterSignature,
		},
		Roles: []models.UserRole{models.RoleFieldAuthority, models.RoleGeneralDirectorate, models.RoleMinister},
		To:    models.StatusReturned,
	},
	{
		Action: ActionSign,
		From:   []models.DemandeStatus{models.StatusTransmittedToMinister, models.StatusPendingMinisterSignature},
		Roles:  []models.UserRole{models.RoleMinister},
		To:     models.StatusSigned,
	},
	{
		Action: ActionClose,
		From:   []models.DemandeStatus{models.StatusSigned},
		Roles:  []models.UserRole{models.RoleMinister, models.RoleGeneralDirectorate, models.RoleAdministrator},
		To:     models.StatusClosed,
	},
}

// Denial classifies why a guard refused an action.
type Denial int

const (
	DenyNone Denial = iota
	DenyUnknownAction
	DenyRole
	DenyStatus
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Denial  Denial
	Reason  string
	Target  models.DemandeStatus
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

// Actions lists every known action in table order.
func Actions() []Action {
	out := make([]Action, 0, len(table))
	for _, rule := range table {
		out = append(out, rule.Action)
	}
	return out
}

// Authorize checks the action/role half of the guard. It runs before the
// request is loaded so callers without the capability learn nothing about it.
func Authorize(action Action, role models.UserRole) GuardResult {
	rule, ok := lookup(action)
	if !ok {
		return GuardResult{Denial: DenyUnknownAction, Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if !containsRole(rule.Roles, role) {
		return GuardResult{Denial: DenyRole, Reason: fmt.Sprintf("role %s may not %s", role, action)}
	}
	return GuardResult{Allowed: true, Target: rule.To}
}

// Guard is the single decision point for lifecycle transitions.
func Guard(action Action, role models.UserRole, status models.DemandeStatus) GuardResult {
	result := Authorize(action, role)
	if !result.Allowed {
		return result
	}
	rule, _ := lookup(action)
	if !containsStatus(rule.From, status) {
		return GuardResult{
			Denial: DenyStatus,
			Reason: fmt.Sprintf("cannot %s a request in status %s", action, status),
		}
	}
	return GuardResult{Allowed: true, Target: rule.To}
}

// Capabilities derives the actions each role may attempt.
func Capabilities() map[models.UserRole][]Action {
	caps := make(map[models.UserRole][]Action)
	for _, rule := range table {
		for _, role := range rule.Roles {
			caps[role] = append(caps[role], rule.Action)
		}
	}
	return caps
}

// AvailableActions lists caller-invocable actions the role may fire from status.
func AvailableActions(role models.UserRole, status models.DemandeStatus) []Action {
	out := make([]Action, 0)
	for _, rule := range table {
		if rule.internal {
			continue
		}
		if Guard(rule.Action, role, status).Allowed {
			out = append(out, rule.Action)
		}
	}
	return out
}

// Terminal reports whether no action leaves status.
func Terminal(status models.DemandeStatus) bool {
	for _, rule := range table {
		if containsStatus(rule.From, status) {
			return false
		}
	}
	return true
}

func lookup(action Action) (Rule, bool) {
	for _, rule := range table {
		if rule.Action == action {
			return rule, true
		}
	}
	return Rule{}, false
}

func containsRole(roles []models.UserRole, role models.UserRole) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.DemandeStatus, status models.DemandeStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
