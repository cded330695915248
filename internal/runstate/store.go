package runstate

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Store records per-step run state for jobs. Implementations must make
// RecordTransition atomic per step: concurrent writers race through
// compare-and-set, never lost updates.
type Store interface {
	// InitJob registers a job with every listed step in Pending.
	InitJob(ctx context.Context, jobID string, steps []string) error

	// RecordTransition applies one state transition. It returns true when
	// the transition was applied, and false without error when the step is
	// already terminal (redundant completions are a no-op by contract).
	// Transitions the state machine forbids from a non-terminal state
	// return an error: they indicate an engine bug, not queue redelivery.
	RecordTransition(ctx context.Context, jobID, step string, t Transition) (bool, error)

	// ReadState returns the full step-name -> status map for a job.
	ReadState(ctx context.Context, jobID string) (map[string]StepStatus, error)
}

// Transition is the payload of one RecordTransition call.
type Transition struct {
	To      State
	Outputs map[string]cty.Value // set only with To == Succeeded
	Error   string               // set only with To == Failed or Skipped
}

// IllegalTransitionError reports a transition the state machine forbids
// from a live (non-terminal) state.
type IllegalTransitionError struct {
	JobID string
	Step  string
	From  State
	To    State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("job %s, step %q: illegal transition %s -> %s", e.JobID, e.Step, e.From, e.To)
}

// UnknownJobError reports an operation against a job the store has never
// seen.
type UnknownJobError struct {
	JobID string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown job %s", e.JobID)
}
