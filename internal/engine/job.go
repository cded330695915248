package engine

import (
	"context"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/graph"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
	"github.com/specialistvlad/mlgridgo/internal/scheduler"
	"github.com/specialistvlad/mlgridgo/internal/worker"
)

// job is the engine's in-memory handle for one submitted run. All durable
// state lives in the store; the handle only carries the graph, the bound
// parameters, and the channels driving the scheduling loop.
type job struct {
	id        string
	graph     *graph.Graph
	scheduler *scheduler.Scheduler
	params    map[string]cty.Value

	notify     chan worker.Completion
	cancelled  chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

// runJob is the per-job scheduling loop: dispatch whatever is ready, then
// react to completions until every step is terminal.
func (e *Engine) runJob(ctx context.Context, j *job) {
	// Evict the handle before signalling done: long-lived engines must not
	// accrue one handle per finished job, and the store keeps the run
	// queryable after eviction.
	defer func() {
		e.jobs.Delete(j.id)
		close(j.done)
	}()
	logger := ctxlog.FromContext(ctx).With("job", j.id)
	ctx = ctxlog.WithLogger(ctx, logger)

	if finished := e.advance(ctx, j); finished {
		logger.Info("Job finished.")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.cancelled:
			// Cancel already marked every live step Skipped.
			logger.Info("Job finished.", "cancelled", true)
			return
		case c := <-j.notify:
			if c.State == runstate.Failed {
				e.skipDependents(ctx, j, c.Step)
			}
			if finished := e.advance(ctx, j); finished {
				logger.Info("Job finished.")
				return
			}
		}
	}
}

// advance reads the current state, dispatches every step that became Ready,
// and reports whether the job is finished. A step whose dispatch
// definitively fails is marked Failed and its dependents Skipped, so a dead
// queue fails the job instead of hanging it.
func (e *Engine) advance(ctx context.Context, j *job) bool {
	logger := ctxlog.FromContext(ctx)

	states, err := e.store.ReadState(ctx, j.id)
	if err != nil {
		logger.Error("Reading run state failed.", "error", err)
		return false
	}
	if scheduler.Done(states) {
		return true
	}

	ready := j.scheduler.ReadySteps(states)
	for _, name := range ready {
		select {
		case <-j.cancelled:
			return false
		default:
		}

		if _, err := e.store.RecordTransition(ctx, j.id, name, runstate.Transition{To: runstate.Ready}); err != nil {
			logger.Error("Marking step ready failed.", "step", name, "error", err)
			continue
		}
		if err := e.dispatcher.Dispatch(ctx, j.id, j.graph, name, j.params, states); err != nil {
			logger.Error("Dispatch failed.", "step", name, "error", err)
			if _, terr := e.store.RecordTransition(ctx, j.id, name, runstate.Transition{
				To:    runstate.Failed,
				Error: err.Error(),
			}); terr != nil {
				logger.Error("Recording dispatch failure failed.", "step", name, "error", terr)
				continue
			}
			e.skipDependents(ctx, j, name)
		}
	}

	if len(ready) > 0 {
		// Dispatch may have raced with fast workers; re-check completion.
		states, err = e.store.ReadState(ctx, j.id)
		if err != nil {
			logger.Error("Reading run state failed.", "error", err)
			return false
		}
		return scheduler.Done(states)
	}
	return false
}

// skipDependents marks every live transitive dependent of a failed step
// Skipped. Independent branches keep running.
func (e *Engine) skipDependents(ctx context.Context, j *job, failed string) {
	logger := ctxlog.FromContext(ctx)

	states, err := e.store.ReadState(ctx, j.id)
	if err != nil {
		logger.Error("Reading run state failed.", "error", err)
		return
	}
	for _, name := range j.scheduler.SkipSet(failed, states) {
		_, err := e.store.RecordTransition(ctx, j.id, name, runstate.Transition{
			To:    runstate.Skipped,
			Error: "upstream step " + failed + " failed",
		})
		if err != nil {
			logger.Error("Skipping dependent failed.", "step", name, "error", err)
			continue
		}
		logger.Debug("Skipped dependent of failed step.", "step", name, "failed", failed)
	}
}
