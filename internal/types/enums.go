package types

// Status represents the lifecycle state of a Monitor.
//
// Valid transitions:
//
//	instantiated -> monitoring -> triggered
//	instantiated -> completed
//	monitoring   -> completed
//
// triggered and completed are terminal; no transition leaves them.
type Status string

const (
	StatusInstantiated Status = "instantiated"
	StatusMonitoring   Status = "monitoring"
	StatusTriggered    Status = "triggered"
	StatusCompleted    Status = "completed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusTriggered || s == StatusCompleted
}

// IsValid reports whether s is one of the four lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusInstantiated, StatusMonitoring, StatusTriggered, StatusCompleted:
		return true
	}
	return false
}
