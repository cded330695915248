// This file provides the ephemeral, in-process Store used for local runs
// and tests. State lives in a per-job map guarded by a per-job mutex, so
// the compare-and-set in RecordTransition is trivially atomic and
// independent jobs never contend.

package runstate

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation.
type MemStore struct {
	jobs sync.Map // jobID -> *jobState
}

type jobState struct {
	mu    sync.Mutex
	steps map[string]*StepStatus
}

// NewMemStore creates an empty in-memory run-state store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// InitJob implements Store.
func (s *MemStore) InitJob(ctx context.Context, jobID string, steps []string) error {
	js := &jobState{steps: make(map[string]*StepStatus, len(steps))}
	now := time.Now()
	for _, name := range steps {
		js.steps[name] = &StepStatus{State: Pending, UpdatedAt: now}
	}
	s.jobs.Store(jobID, js)
	return nil
}

// RecordTransition implements Store.
func (s *MemStore) RecordTransition(ctx context.Context, jobID, step string, t Transition) (bool, error) {
	js, err := s.job(jobID)
	if err != nil {
		return false, err
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	status, ok := js.steps[step]
	if !ok {
		return false, &IllegalTransitionError{JobID: jobID, Step: step, From: Pending, To: t.To}
	}
	if status.State.Terminal() {
		// Redundant completion, e.g. duplicate queue delivery.
		return false, nil
	}
	if !CanTransition(status.State, t.To) {
		return false, &IllegalTransitionError{JobID: jobID, Step: step, From: status.State, To: t.To}
	}

	status.State = t.To
	status.Error = t.Error
	status.UpdatedAt = time.Now()
	if t.Outputs != nil {
		status.Outputs = t.Outputs
	}
	return true, nil
}

// ReadState implements Store. The returned map is a snapshot; mutating it
// does not affect the store.
func (s *MemStore) ReadState(ctx context.Context, jobID string) (map[string]StepStatus, error) {
	js, err := s.job(jobID)
	if err != nil {
		return nil, err
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	out := make(map[string]StepStatus, len(js.steps))
	for name, status := range js.steps {
		out[name] = *status
	}
	return out, nil
}

func (s *MemStore) job(jobID string) (*jobState, error) {
	v, ok := s.jobs.Load(jobID)
	if !ok {
		return nil, &UnknownJobError{JobID: jobID}
	}
	return v.(*jobState), nil
}
