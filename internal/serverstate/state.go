package serverstate

import "sync/atomic"

// State holds the process status and draining flag. Both fields are
// replaced together so readers always observe a consistent snapshot.
type State struct {
	Status   string
	Draining bool
}

// Status values reported by /healthz.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
)

var current atomic.Value

func init() {
	current.Store(State{Status: StatusNotReady})
}

// Load returns the current state snapshot.
func Load() State {
	if st, ok := current.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

// SetState updates the status string, keeping the draining flag.
func SetState(status string) {
	st := Load()
	st.Status = status
	current.Store(st)
}

// GetState returns the current status.
func GetState() string { return Load().Status }

// StartDrain marks the process as draining.
func StartDrain() {
	current.Store(State{Status: StatusDraining, Draining: true})
}

// IsDraining reports whether the process is draining.
func IsDraining() bool { return Load().Draining }

// Reset restores the initial state. Intended for tests.
func Reset() { current.Store(State{Status: StatusNotReady}) }
