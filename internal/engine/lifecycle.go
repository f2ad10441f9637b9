package engine

import (
	"time"

	"rainwatch/internal/types"
)

// LifecycleStep is the outcome of advancing one monitor's lifecycle at the
// start of a cycle, before any reading is fetched.
type LifecycleStep struct {
	// StatusChanged is true when the advance moved the monitor to a new
	// lifecycle state (monitoring or completed).
	StatusChanged bool

	// Accumulate is true when the monitor should receive a reading this
	// cycle. A monitor that enters monitoring in this same step does
	// accumulate immediately.
	Accumulate bool
}

// AdvanceLifecycle applies the time-driven lifecycle transitions to a
// monitor for the given cycle instant. Transition order matters:
//
//  1. Terminal states (triggered, completed) admit no transitions.
//  2. Window elapsed moves the monitor to completed. This takes precedence
//     over starting: a monitor whose whole window passed between cycles
//     completes without ever monitoring.
//  3. Window begun moves an instantiated monitor to monitoring.
//
// The threshold-crossing transition to triggered is not handled here; it
// depends on the reading fetched afterwards and lives in the cycle.
func AdvanceLifecycle(m *types.Monitor, now time.Time) LifecycleStep {
	var step LifecycleStep

	if m.Status.IsTerminal() {
		return step
	}

	switch {
	case now.After(m.EndDate):
		m.Status = types.StatusCompleted
		step.StatusChanged = true
	case !now.Before(m.StartDate) && m.Status == types.StatusInstantiated:
		m.Status = types.StatusMonitoring
		step.StatusChanged = true
	}

	step.Accumulate = m.Status == types.StatusMonitoring
	return step
}
