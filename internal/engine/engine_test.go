package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/engine"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
	"github.com/specialistvlad/mlgridgo/internal/testutil"
)

type numInput struct {
	N float64 `cty:"n"`
}

type numOutput struct {
	N float64 `cty:"n"`
}

func emitPlugin() testutil.Plugin {
	return testutil.Plugin{
		ID: "emit",
		Manifest: `
plugin "emit" {
  input "n" { type = number }
  output "n" { type = number }
}
`,
		Handler: &catalog.Handler{
			NewInput: func() any { return new(numInput) },
			Fn: func(ctx context.Context, in *numInput) (*numOutput, error) {
				return &numOutput{N: in.N}, nil
			},
		},
	}
}

func doublePlugin() testutil.Plugin {
	return testutil.Plugin{
		ID: "double",
		Manifest: `
plugin "double" {
  input "n" { type = number }
  output "n" { type = number }
}
`,
		Handler: &catalog.Handler{
			NewInput: func() any { return new(numInput) },
			Fn: func(ctx context.Context, in *numInput) (*numOutput, error) {
				return &numOutput{N: in.N * 2}, nil
			},
		},
	}
}

func failPlugin() testutil.Plugin {
	return testutil.Plugin{
		ID: "always_fail",
		Manifest: `
plugin "always_fail" {
  input "n" {
    type    = number
    default = 0
  }
  output "n" { type = number }
}
`,
		Handler: &catalog.Handler{
			NewInput: func() any { return new(numInput) },
			Fn: func(ctx context.Context, in *numInput) (*numOutput, error) {
				return nil, errors.New("synthetic failure")
			},
		},
	}
}

func TestEngine_ValueFlowsProducerToConsumer(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := testutil.NewHarness(t, emitPlugin(), doublePlugin())

	// --- Act ---
	_, states := h.RunPipeline(t, `
steps:
  a:
    plugin: emit
    inputs: { n: 5 }
  b:
    plugin: double
    inputs: { n: $a.n }
`, nil)

	// --- Assert ---
	require.Equal(t, runstate.Succeeded, states["a"].State)
	require.Equal(t, runstate.Succeeded, states["b"].State)
	require.True(t, states["b"].Outputs["n"].RawEquals(cty.NumberFloatVal(10)))
}

func TestEngine_WholeStepReferenceResolvesSingleOutput(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, emitPlugin(), doublePlugin())

	_, states := h.RunPipeline(t, `
steps:
  a:
    plugin: emit
    inputs: { n: 3 }
  b:
    plugin: double
    inputs: { n: $a }
`, nil)

	require.True(t, states["b"].Outputs["n"].RawEquals(cty.NumberFloatVal(6)))
}

func TestEngine_ParamOverrideConvertsToDeclaredType(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, emitPlugin())

	// CLI overrides arrive as strings; the declared number type drives the
	// conversion.
	_, states := h.RunPipeline(t, `
params:
  n: { type: number, default: 1 }
steps:
  a:
    plugin: emit
    inputs: { n: $n }
`, map[string]cty.Value{"n": cty.StringVal("7")})

	require.True(t, states["a"].Outputs["n"].RawEquals(cty.NumberFloatVal(7)))
}

func TestEngine_FailureSkipsDependentsOnly(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// bad -> downstream must be skipped; the independent branch keeps going.
	h := testutil.NewHarness(t, emitPlugin(), doublePlugin(), failPlugin())

	// --- Act ---
	_, states := h.RunPipeline(t, `
steps:
  bad:
    plugin: always_fail
  downstream:
    plugin: double
    inputs: { n: $bad.n }
  independent:
    plugin: emit
    inputs: { n: 4 }
`, nil)

	// --- Assert ---
	require.Equal(t, runstate.Failed, states["bad"].State)
	require.Contains(t, states["bad"].Error, "synthetic failure")
	require.Equal(t, runstate.Skipped, states["downstream"].State)
	require.Contains(t, states["downstream"].Error, "bad")
	require.Equal(t, runstate.Succeeded, states["independent"].State)
}

func TestEngine_SubmitRejectsInvalidPipeline(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, emitPlugin())
	p := h.ParsePipeline(t, `
steps:
  a:
    plugin: emit
    inputs: { n: "not a number" }
`)

	_, err := h.Engine.Submit(h.Context(), p, nil)

	var invalid *pipeline.InvalidLiteralError
	require.ErrorAs(t, err, &invalid)
	require.True(t, errors.Is(err, pipeline.ErrType))
}

func TestEngine_SubmitRejectsUnknownOverride(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, emitPlugin())
	p := h.ParsePipeline(t, `
steps:
  a:
    plugin: emit
    inputs: { n: 1 }
`)

	_, err := h.Engine.Submit(h.Context(), p, map[string]cty.Value{"ghost": cty.StringVal("x")})
	require.ErrorContains(t, err, `unknown parameter "ghost"`)
}

func TestEngine_CancelSkipsLiveSteps(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := testutil.Plugin{
		ID: "blocker",
		Manifest: `
plugin "blocker" {
  input "n" {
    type    = number
    default = 0
  }
  output "n" { type = number }
}
`,
		Handler: &catalog.Handler{
			NewInput: func() any { return new(numInput) },
			Fn: func(ctx context.Context, in *numInput) (*numOutput, error) {
				close(started)
				select {
				case <-release:
				case <-ctx.Done():
				}
				return nil, errors.New("interrupted")
			},
		},
	}
	h := testutil.NewHarness(t, blocker, doublePlugin())
	p := h.ParsePipeline(t, `
steps:
  slow:
    plugin: blocker
  after:
    plugin: double
    inputs: { n: $slow.n }
`)

	jobID, err := h.Engine.Submit(h.Context(), p, nil)
	require.NoError(t, err)

	// --- Act ---
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("step never started")
	}
	require.NoError(t, h.Engine.Cancel(h.Context(), jobID))
	close(release)

	states, err := h.Engine.Wait(h.Context(), jobID)
	require.NoError(t, err)

	// --- Assert ---
	require.Equal(t, runstate.Skipped, states["slow"].State)
	require.Equal(t, runstate.Skipped, states["after"].State)

	// The in-flight handler's eventual failure must not overwrite the
	// terminal Skipped state.
	time.Sleep(50 * time.Millisecond)
	states, err = h.Engine.Status(h.Context(), jobID)
	require.NoError(t, err)
	require.Equal(t, runstate.Skipped, states["slow"].State)
}

func TestEngine_StepTimeoutFailsStepAndSkipsDependents(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	sleepy := testutil.Plugin{
		ID: "sleepy",
		Manifest: `
plugin "sleepy" {
  output "n" { type = number }
}
`,
		Handler: &catalog.Handler{
			Fn: func(ctx context.Context, _ any) (*numOutput, error) {
				time.Sleep(500 * time.Millisecond)
				return &numOutput{N: 1}, nil
			},
		},
	}
	h := testutil.NewHarnessWithOptions(t, engine.Options{
		Workers:     2,
		StepTimeout: 50 * time.Millisecond,
	}, sleepy, doublePlugin())

	// --- Act ---
	_, states := h.RunPipeline(t, `
steps:
  slow:
    plugin: sleepy
  after:
    plugin: double
    inputs: { n: $slow.n }
`, nil)

	// --- Assert ---
	require.Equal(t, runstate.Failed, states["slow"].State)
	require.Contains(t, states["slow"].Error, "execution exceeded timeout")
	require.Equal(t, runstate.Skipped, states["after"].State)
}

// deadQueue rejects every enqueue with QueueUnavailableError.
type deadQueue struct{}

func (deadQueue) Enqueue(ctx context.Context, item *queue.WorkItem) error {
	return &queue.QueueUnavailableError{Err: errors.New("broker down")}
}

func (deadQueue) Dequeue(ctx context.Context) (*queue.WorkItem, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_UnreachableQueueFailsStepAndSkipsDependents(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := catalog.NewRegistry()
	for _, plug := range []testutil.Plugin{emitPlugin(), doublePlugin()} {
		require.NoError(t, reg.LoadManifest([]byte(plug.Manifest), "test-manifest.hcl"))
		require.NoError(t, reg.RegisterHandler(plug.ID, plug.Handler))
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, reg.Validate(ctx))

	store := runstate.NewMemStore()
	eng := engine.New(reg, store, deadQueue{}, engine.Options{
		Workers:       1,
		EnqueueWindow: 150 * time.Millisecond,
	})
	eng.Start(ctx)

	p, err := pipeline.Parse(ctx, []byte(`
steps:
  a:
    plugin: emit
    inputs: { n: 1 }
  b:
    plugin: double
    inputs: { n: $a.n }
`), reg, reg.Types())
	require.NoError(t, err)

	// --- Act ---
	jobID, err := eng.Submit(ctx, p, nil)
	require.NoError(t, err)
	states, err := eng.Wait(ctx, jobID)
	require.NoError(t, err)

	// --- Assert ---
	// The retry window runs dry, the step fails, and the job resolves
	// instead of hanging.
	require.Equal(t, runstate.Failed, states["a"].State)
	require.Contains(t, states["a"].Error, "work queue unavailable")
	require.Equal(t, runstate.Skipped, states["b"].State)
}

func TestEngine_FinishedJobStaysQueryable(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := testutil.NewHarness(t, emitPlugin())
	jobID, states := h.RunPipeline(t, `
steps:
  a:
    plugin: emit
    inputs: { n: 2 }
`, nil)
	require.Equal(t, runstate.Succeeded, states["a"].State)

	// --- Act / Assert ---
	// The run resolves from the store after the in-memory handle is gone.
	states, err := h.Engine.Wait(h.Context(), jobID)
	require.NoError(t, err)
	require.Equal(t, runstate.Succeeded, states["a"].State)

	states, err = h.Engine.Status(h.Context(), jobID)
	require.NoError(t, err)
	require.Equal(t, runstate.Succeeded, states["a"].State)

	require.NoError(t, h.Engine.Cancel(h.Context(), jobID))

	var unknown *runstate.UnknownJobError
	_, err = h.Engine.Wait(h.Context(), "no-such-job")
	require.ErrorAs(t, err, &unknown)
	err = h.Engine.Cancel(h.Context(), "no-such-job")
	require.ErrorAs(t, err, &unknown)
}

func TestEngine_ConcurrentJobsAreIsolated(t *testing.T) {
	t.Parallel()

	h := testutil.NewHarness(t, emitPlugin(), doublePlugin())
	doc := `
steps:
  a:
    plugin: emit
    inputs: { n: 2 }
  b:
    plugin: double
    inputs: { n: $a.n }
`
	p1 := h.ParsePipeline(t, doc)
	p2 := h.ParsePipeline(t, doc)

	job1, err := h.Engine.Submit(h.Context(), p1, nil)
	require.NoError(t, err)
	job2, err := h.Engine.Submit(h.Context(), p2, nil)
	require.NoError(t, err)
	require.NotEqual(t, job1, job2)

	states1, err := h.Engine.Wait(h.Context(), job1)
	require.NoError(t, err)
	states2, err := h.Engine.Wait(h.Context(), job2)
	require.NoError(t, err)

	require.Equal(t, runstate.Succeeded, states1["b"].State)
	require.Equal(t, runstate.Succeeded, states2["b"].State)
}
