package runstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestCanTransition_Lifecycle(t *testing.T) {
	t.Parallel()

	require.True(t, CanTransition(Pending, Ready))
	require.True(t, CanTransition(Pending, Skipped))
	require.True(t, CanTransition(Ready, Running))
	require.True(t, CanTransition(Running, Succeeded))
	require.True(t, CanTransition(Running, Failed))
	require.True(t, CanTransition(Running, Skipped))

	// A worker may complete a step before the dispatcher's Running write.
	require.True(t, CanTransition(Ready, Succeeded))
	require.True(t, CanTransition(Ready, Failed))

	// No step ever re-enters Pending, and terminal states never change.
	require.False(t, CanTransition(Ready, Pending))
	require.False(t, CanTransition(Running, Pending))
	require.False(t, CanTransition(Pending, Running))
	require.False(t, CanTransition(Succeeded, Running))
	require.False(t, CanTransition(Failed, Skipped))
	require.False(t, CanTransition(Skipped, Ready))
}

func TestMemStore_TransitionFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// --- Arrange ---
	s := NewMemStore()
	require.NoError(t, s.InitJob(ctx, "job1", []string{"a", "b"}))

	// --- Act / Assert ---
	states, err := s.ReadState(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, Pending, states["a"].State)
	require.Equal(t, Pending, states["b"].State)

	applied, err := s.RecordTransition(ctx, "job1", "a", Transition{To: Ready})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.RecordTransition(ctx, "job1", "a", Transition{To: Running})
	require.NoError(t, err)
	require.True(t, applied)

	outputs := map[string]cty.Value{"value": cty.NumberIntVal(5)}
	applied, err = s.RecordTransition(ctx, "job1", "a", Transition{To: Succeeded, Outputs: outputs})
	require.NoError(t, err)
	require.True(t, applied)

	states, err = s.ReadState(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, Succeeded, states["a"].State)
	require.Equal(t, outputs, states["a"].Outputs)
}

func TestMemStore_RedundantCompletionIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemStore()
	require.NoError(t, s.InitJob(ctx, "job1", []string{"a"}))
	_, err := s.RecordTransition(ctx, "job1", "a", Transition{To: Ready})
	require.NoError(t, err)
	_, err = s.RecordTransition(ctx, "job1", "a", Transition{To: Succeeded})
	require.NoError(t, err)

	// A duplicate queue delivery tries to complete the step again: no
	// error, not applied, state unchanged.
	applied, err := s.RecordTransition(ctx, "job1", "a", Transition{To: Failed, Error: "boom"})
	require.NoError(t, err)
	require.False(t, applied)

	states, err := s.ReadState(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, Succeeded, states["a"].State)
	require.Empty(t, states["a"].Error)
}

func TestMemStore_IllegalTransition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemStore()
	require.NoError(t, s.InitJob(ctx, "job1", []string{"a"}))

	// Pending -> Running skips Ready and is an engine bug, not redelivery.
	_, err := s.RecordTransition(ctx, "job1", "a", Transition{To: Running})

	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, Pending, illegal.From)
	require.Equal(t, Running, illegal.To)
}

func TestMemStore_UnknownJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemStore()
	_, err := s.ReadState(ctx, "nope")

	var unknown *UnknownJobError
	require.ErrorAs(t, err, &unknown)
}

func TestMemStore_ReadStateReturnsSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemStore()
	require.NoError(t, s.InitJob(ctx, "job1", []string{"a"}))

	snapshot, err := s.ReadState(ctx, "job1")
	require.NoError(t, err)
	snapshot["a"] = StepStatus{State: Failed}

	states, err := s.ReadState(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, Pending, states["a"].State)
}
