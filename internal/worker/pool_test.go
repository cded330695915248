package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

func TestExecute_DuplicateDeliveryOfTerminalStepIsDropped(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := catalog.NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(`
plugin "count" {
  output "n" { type = number }
}
`), "count.hcl"))

	type countOutput struct {
		N float64 `cty:"n"`
	}
	calls := 0
	require.NoError(t, r.RegisterHandler("count", &catalog.Handler{
		Fn: func(ctx context.Context, _ any) (*countOutput, error) {
			calls++
			return &countOutput{N: float64(calls)}, nil
		},
	}))

	ctx := context.Background()
	store := runstate.NewMemStore()
	require.NoError(t, store.InitJob(ctx, "job1", []string{"a"}))
	_, err := store.RecordTransition(ctx, "job1", "a", runstate.Transition{To: runstate.Ready})
	require.NoError(t, err)

	completions := make(chan Completion, 2)
	p := NewPool(r, store, queue.NewMemQueue(1), 1, completions)
	item := &queue.WorkItem{JobID: "job1", Step: "a", Plugin: "count", Args: map[string]cty.Value{}}

	// --- Act ---
	// At-least-once transport: the same item arrives twice.
	p.execute(ctx, item)
	p.execute(ctx, item)

	// --- Assert ---
	require.Equal(t, 1, calls, "redelivered terminal step must not run again")
	require.Len(t, completions, 1)

	states, err := store.ReadState(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, runstate.Succeeded, states["a"].State)
	require.True(t, states["a"].Outputs["n"].RawEquals(cty.NumberFloatVal(1)))
}
