// Package testutil provides an in-memory harness for end-to-end engine
// tests: a plugin catalog built from literal manifests and handlers, an
// in-memory store and queue, and a started engine.
package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/engine"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

// Plugin couples a manifest source with its handler for registration in a
// test catalog. A nil Handler registers the signature only.
type Plugin struct {
	Manifest string
	ID       string
	Handler  *catalog.Handler
}

// Harness wires a complete in-memory engine for one test.
type Harness struct {
	Registry *catalog.Registry
	Store    *runstate.MemStore
	Queue    *queue.MemQueue
	Engine   *engine.Engine

	ctx context.Context
}

// NewHarness builds and starts an engine over the given plugins. Everything
// is torn down through t.Cleanup.
func NewHarness(t *testing.T, plugins ...Plugin) *Harness {
	t.Helper()
	return NewHarnessWithOptions(t, engine.Options{Workers: 2}, plugins...)
}

// NewHarnessWithOptions is NewHarness with explicit engine options, for
// tests that tune timeouts or pool sizes.
func NewHarnessWithOptions(t *testing.T, opts engine.Options, plugins ...Plugin) *Harness {
	t.Helper()

	reg := catalog.NewRegistry()
	for _, p := range plugins {
		require.NoError(t, reg.LoadManifest([]byte(p.Manifest), "test-manifest.hcl"))
		if p.Handler != nil {
			require.NoError(t, reg.RegisterHandler(p.ID, p.Handler))
		}
	}

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	t.Cleanup(cancel)

	require.NoError(t, reg.Validate(ctx))

	store := runstate.NewMemStore()
	q := queue.NewMemQueue(64)
	eng := engine.New(reg, store, q, opts)
	eng.Start(ctx)

	return &Harness{
		Registry: reg,
		Store:    store,
		Queue:    q,
		Engine:   eng,
		ctx:      ctx,
	}
}

// Context returns the harness's logging-enabled context.
func (h *Harness) Context() context.Context {
	return h.ctx
}

// ParsePipeline parses a pipeline document against the harness catalog.
func (h *Harness) ParsePipeline(t *testing.T, src string) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Parse(h.ctx, []byte(src), h.Registry, h.Registry.Types())
	require.NoError(t, err)
	return p
}

// RunPipeline submits a pipeline and waits for it to finish, returning the
// job id and the final per-step states.
func (h *Harness) RunPipeline(t *testing.T, src string, overrides map[string]cty.Value) (string, map[string]runstate.StepStatus) {
	t.Helper()
	p := h.ParsePipeline(t, src)

	jobID, err := h.Engine.Submit(h.ctx, p, overrides)
	require.NoError(t, err)

	states, err := h.Engine.Wait(h.ctx, jobID)
	require.NoError(t, err)
	return jobID, states
}

// testWriter routes engine logs through the test log so failures carry the
// full execution trace.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
