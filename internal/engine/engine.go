// Package engine implements the job orchestrator. It owns the lifecycle of
// every submitted pipeline run: static validation, parameter binding, the
// per-job scheduling loop, and the shared worker pool. One engine instance
// serves many concurrent jobs over one store and one queue.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/dispatch"
	"github.com/specialistvlad/mlgridgo/internal/graph"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
	"github.com/specialistvlad/mlgridgo/internal/scheduler"
	"github.com/specialistvlad/mlgridgo/internal/validate"
	"github.com/specialistvlad/mlgridgo/internal/worker"
)

// Options tunes one engine instance.
type Options struct {
	// Workers is the worker pool size; zero selects worker.DefaultPoolSize.
	Workers int
	// StepTimeout bounds each plugin invocation; zero selects
	// dispatch.DefaultStepTimeout.
	StepTimeout time.Duration
	// EnqueueWindow bounds the backoff retries for one enqueue; zero selects
	// dispatch.DefaultEnqueueWindow.
	EnqueueWindow time.Duration
}

// Engine orchestrates job execution.
type Engine struct {
	registry   *catalog.Registry
	store      runstate.Store
	queue      queue.Queue
	dispatcher *dispatch.Dispatcher
	pool       *worker.Pool

	completions chan worker.Completion
	jobs        sync.Map // jobID -> *job

	startOnce sync.Once
	runCtx    context.Context
}

// New assembles an engine over an existing store and queue. Call Start
// before the first Submit.
func New(registry *catalog.Registry, store runstate.Store, q queue.Queue, opts Options) *Engine {
	e := &Engine{
		registry:    registry,
		store:       store,
		queue:       q,
		dispatcher:  dispatch.New(store, q, opts.StepTimeout, opts.EnqueueWindow),
		completions: make(chan worker.Completion, 64),
	}
	e.pool = worker.NewPool(registry, store, q, opts.Workers, e.completions)
	return e
}

// Start launches the worker pool and the completion router. They run until
// ctx is cancelled; cancelling ctx abandons all in-flight jobs.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.runCtx = ctx
		go e.pool.Run(ctx)
		go e.route(ctx)
	})
}

// Submit validates a pipeline, binds its parameters, and starts executing
// it as a new job. It returns as soon as the job is registered; use Wait to
// block until the run finishes.
func (e *Engine) Submit(ctx context.Context, p *pipeline.Pipeline, overrides map[string]cty.Value) (string, error) {
	if e.runCtx == nil {
		return "", fmt.Errorf("engine not started")
	}

	g, err := graph.Build(ctx, p)
	if err != nil {
		return "", err
	}
	if err := validate.Validate(ctx, g); err != nil {
		return "", err
	}

	params, err := bindParams(p, overrides)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	if err := e.store.InitJob(ctx, jobID, p.StepNames()); err != nil {
		return "", err
	}

	j := &job{
		id:        jobID,
		graph:     g,
		scheduler: scheduler.New(g),
		params:    params,
		notify:    make(chan worker.Completion, len(p.Steps)+1),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.jobs.Store(jobID, j)

	ctxlog.FromContext(ctx).Info("Job submitted.", "job", jobID, "pipeline", p.Name, "steps", len(p.Steps))
	go e.runJob(e.runCtx, j)
	return jobID, nil
}

// Status returns the current per-step state of a job.
func (e *Engine) Status(ctx context.Context, jobID string) (map[string]runstate.StepStatus, error) {
	return e.store.ReadState(ctx, jobID)
}

// Cancel marks every not-yet-terminal step of a job Skipped and stops
// further dispatching. Steps already owned by a worker run to completion;
// their results are recorded only if they win the transition race.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	v, ok := e.jobs.Load(jobID)
	if !ok {
		// Finished and evicted: every step is already terminal, so there is
		// nothing live to skip. Still surface unknown job ids.
		_, err := e.store.ReadState(ctx, jobID)
		return err
	}
	j := v.(*job)

	states, err := e.store.ReadState(ctx, jobID)
	if err != nil {
		return err
	}
	for _, name := range j.scheduler.LiveSteps(states) {
		_, err := e.store.RecordTransition(ctx, jobID, name, runstate.Transition{
			To:    runstate.Skipped,
			Error: "job cancelled",
		})
		if err != nil {
			return err
		}
	}

	j.cancelOnce.Do(func() { close(j.cancelled) })
	ctxlog.FromContext(ctx).Info("Job cancelled.", "job", jobID)
	return nil
}

// Wait blocks until the job's scheduling loop finishes, then returns the
// final per-step states. A job whose handle was already evicted resolves
// immediately from the store.
func (e *Engine) Wait(ctx context.Context, jobID string) (map[string]runstate.StepStatus, error) {
	v, ok := e.jobs.Load(jobID)
	if !ok {
		return e.store.ReadState(ctx, jobID)
	}
	j := v.(*job)

	select {
	case <-j.done:
		return e.store.ReadState(ctx, jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// route fans completions from the shared worker pool out to the per-job
// scheduling loops.
func (e *Engine) route(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.completions:
			v, ok := e.jobs.Load(c.JobID)
			if !ok {
				continue
			}
			j := v.(*job)
			select {
			case j.notify <- c:
			case <-j.done:
			case <-ctx.Done():
				return
			}
		}
	}
}

// bindParams merges submission overrides over declared defaults, converting
// override values to the declared parameter types. Unknown override names
// and missing required parameters are submission errors.
func bindParams(p *pipeline.Pipeline, overrides map[string]cty.Value) (map[string]cty.Value, error) {
	for name := range overrides {
		if _, ok := p.Param(name); !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
	}

	params := make(map[string]cty.Value, len(p.Params))
	for _, prm := range p.Params {
		if v, ok := overrides[prm.Name]; ok {
			converted, err := convert.Convert(v, prm.Type)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", prm.Name, err)
			}
			params[prm.Name] = converted
			continue
		}
		if prm.Default == cty.NilVal {
			return nil, fmt.Errorf("parameter %q has no default and no override", prm.Name)
		}
		params[prm.Name] = prm.Default
	}
	return params, nil
}
