// Package runstate defines the per-step execution state machine for a job
// and the Store interface through which it is persisted. The store is the
// single shared mutable surface between the dispatcher and the worker pool;
// every transition is compare-and-set against the legal state machine, and
// transitions out of a terminal state are no-ops so at-least-once queue
// delivery is harmless.
package runstate

import (
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// State is the execution state of one step within one job.
type State int

const (
	// Pending: waiting for dependencies; the initial state.
	Pending State = iota
	// Ready: all dependencies Succeeded; eligible for dispatch.
	Ready
	// Running: dispatched to the queue and owned by a worker.
	Running
	// Succeeded: terminal; outputs are recorded.
	Succeeded
	// Failed: terminal; the error message is recorded.
	Failed
	// Skipped: terminal; an upstream failure or a job cancellation made the
	// step unrunnable.
	Skipped
)

var stateNames = map[State]string{
	Pending:   "pending",
	Ready:     "ready",
	Running:   "running",
	Succeeded: "succeeded",
	Failed:    "failed",
	Skipped:   "skipped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState is the inverse of String, used by persistent stores.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return Pending, fmt.Errorf("unknown state %q", name)
}

// Terminal reports whether a step in this state can never change again.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// CanTransition reports whether the state machine allows from -> to.
// A step never re-enters Pending once it leaves it: there are no automatic
// retries at the engine level.
//
// Ready -> {Succeeded, Failed} is allowed in addition to Running -> … so a
// worker that dequeues an item before the dispatcher's Running write lands
// can still complete the step.
func CanTransition(from, to State) bool {
	switch from {
	case Pending:
		return to == Ready || to == Skipped
	case Ready:
		return to == Running || to == Succeeded || to == Failed || to == Skipped
	case Running:
		return to == Succeeded || to == Failed || to == Skipped
	default:
		return false
	}
}

// StepStatus is one step's recorded status within a job.
type StepStatus struct {
	State     State
	Outputs   map[string]cty.Value // non-nil only once Succeeded
	Error     string               // non-empty only once Failed
	UpdatedAt time.Time
}

// PluginExecutionError is the terminal failure recorded when a plugin
// function returns an error or panics.
type PluginExecutionError struct {
	Step    string
	Plugin  string
	Message string
}

func (e *PluginExecutionError) Error() string {
	return fmt.Sprintf("step %q: plugin %q failed: %s", e.Step, e.Plugin, e.Message)
}

// TimeoutError is the terminal failure recorded when a plugin invocation
// exceeds the per-step execution timeout.
type TimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q: execution exceeded timeout of %s", e.Step, e.Timeout)
}
