package core

// RuleState is the lifecycle position of a rule relative to a given day. It
// is derived, never persisted.
type RuleState string

const (
	Pending RuleState = "pending"
	Active  RuleState = "active"
	Expired RuleState = "expired"
)

// State returns where today falls relative to the rule's window.
func (re RecurrenceRule) State(today Date) RuleState {
	if today.Before(re.StartDate) {
		return Pending
	}
	if !re.EndDate.IsZero() && today.After(re.EndDate) {
		return Expired
	}
	return Active
}

// InWindow reports whether day lies within [StartDate, EndDate].
func (re RecurrenceRule) InWindow(day Date) bool {
	return re.State(day) == Active
}
