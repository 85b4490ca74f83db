// Package workflow holds the pure lifecycle rules for authorization requests:
// the status vocabulary, the transition table and the guard that consults it.
// Nothing here performs I/O.
package workflow

import "strings"

// Action names a lifecycle operation an actor (or the engine) can invoke.
type Action string

const (
	ActionSubmit                 Action = "submit"
	ActionStartFieldReview       Action = "startFieldReview"
	ActionValidateField          Action = "validateField"
	ActionTransmitToDirectorate  Action = "transmitToDirectorate"
	ActionStartDirectorateReview Action = "startDirectorateReview"
	ActionValidateDirectorate    Action = "validateDirectorate"
	ActionTransmitToMinister     Action = "transmitToMinister"
	ActionRequestAdvisory        Action = "requestAdvisory"
	ActionAdvisoryForward        Action = "advisoryForward"
	ActionAdvisoryReturn         Action = "advisoryReturn"
	ActionReassign               Action = "reassign"
	ActionRequestComplement      Action = "requestComplement"
	ActionReturn                 Action = "return"
	ActionSign                   Action = "sign"
	ActionClose                  Action = "close"
)

// ParseAction resolves a caller-supplied action name. Matching ignores case and
// accepts kebab or snake spellings ("validate-field", "validate_field").
func ParseAction(raw string) (Action, bool) {
	key := normalizeActionName(raw)
	if key == "" {
		return "", false
	}
	for _, rule := range table {
		if normalizeActionName(string(rule.Action)) == key {
			return rule.Action, true
		}
	}
	return "", false
}

// Internal reports whether only the engine may fire the action.
func (a Action) Internal() bool {
	rule, ok := lookup(a)
	return ok && rule.internal
}

func normalizeActionName(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "-", "")
	raw = strings.ReplaceAll(raw, "_", "")
	return strings.ToLower(raw)
}
