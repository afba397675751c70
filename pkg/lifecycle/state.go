// Package lifecycle tracks the run state of a long-running LearnHub
// process (the HTTP API or the task worker) and aggregates the health of
// its dependencies.
//
// A healthy process moves through
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed. Stopped and Failed may move
// back to Starting for a restart.
//
// Transitions run under a mutex; OnStart and OnStop hooks run outside it.
// Start and Stop record OpenTelemetry spans under the scope
// "github.com/StricklySoft/learnhub-auth/pkg/lifecycle".
package lifecycle

// State is a lifecycle state. The zero value is not valid; a new
// [Service] begins in [StateUnknown].
type State string

const (
	// StateUnknown is the state before Start is first called.
	StateUnknown State = "unknown"

	// StateStarting is set while OnStart hooks run.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] can
	// report healthy.
	StateRunning State = "running"

	// StateStopping is set while OnStop hooks drain in-flight work.
	StateStopping State = "stopping"

	StateStopped State = "stopped"

	// StateFailed is entered when a hook fails.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from → to is allowed. Same-state
// transitions are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
