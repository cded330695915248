// Package dispatch turns Ready steps into work-queue items. For each step it
// evaluates the parsed input expressions against the job's parameters and
// recorded upstream outputs, fills optional inputs from manifest defaults,
// and publishes a fully resolved work item. The step is only marked Running
// once the enqueue has succeeded, so a dead queue never strands a step in
// Running with no owner.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/graph"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

// DefaultStepTimeout bounds a single plugin invocation when the pipeline
// does not override it.
const DefaultStepTimeout = 10 * time.Minute

// DefaultEnqueueWindow caps the backoff retry window for one enqueue.
const DefaultEnqueueWindow = 30 * time.Second

// Dispatcher resolves and enqueues Ready steps for one engine instance.
type Dispatcher struct {
	store       runstate.Store
	queue       queue.Queue
	stepTimeout time.Duration

	// maxEnqueueElapsed caps the backoff retry window for one enqueue.
	maxEnqueueElapsed time.Duration
}

// New creates a dispatcher. Zero durations select DefaultStepTimeout and
// DefaultEnqueueWindow.
func New(store runstate.Store, q queue.Queue, stepTimeout, enqueueWindow time.Duration) *Dispatcher {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	if enqueueWindow <= 0 {
		enqueueWindow = DefaultEnqueueWindow
	}
	return &Dispatcher{
		store:             store,
		queue:             q,
		stepTimeout:       stepTimeout,
		maxEnqueueElapsed: enqueueWindow,
	}
}

// Dispatch resolves one Ready step's arguments, enqueues it, and records the
// Running transition. Transient queue failures are retried with exponential
// backoff; once the retry window is exhausted the error is returned and the
// step stays Ready for a later dispatch attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, g *graph.Graph, stepName string, params map[string]cty.Value, states map[string]runstate.StepStatus) error {
	logger := ctxlog.FromContext(ctx)

	step, ok := g.Pipeline.Step(stepName)
	if !ok {
		return fmt.Errorf("dispatching unknown step %q", stepName)
	}

	args, err := ResolveArgs(step, params, g.Pipeline, states)
	if err != nil {
		return fmt.Errorf("resolving arguments for step %q: %w", stepName, err)
	}

	item := &queue.WorkItem{
		JobID:   jobID,
		Step:    stepName,
		Plugin:  step.Plugin,
		Args:    args,
		Timeout: d.stepTimeout,
	}

	policy := backoff.WithContext(newEnqueueBackoff(d.maxEnqueueElapsed), ctx)
	err = backoff.Retry(func() error {
		return d.queue.Enqueue(ctx, item)
	}, policy)
	if err != nil {
		return fmt.Errorf("enqueueing step %q: %w", stepName, err)
	}

	// The worker may already have completed the step; a false return here
	// just means we lost that race.
	if _, err := d.store.RecordTransition(ctx, jobID, stepName, runstate.Transition{To: runstate.Running}); err != nil {
		return err
	}
	logger.Debug("Dispatch: step enqueued.", "job", jobID, "step", stepName, "plugin", step.Plugin)
	return nil
}

func newEnqueueBackoff(maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = maxElapsed
	return b
}

// ResolveArgs evaluates every supplied input expression and fills optional
// inputs from defaults, producing the complete argument map for a work item.
// Values are converted to the declared input types so the plugin's decoder
// sees exactly the shapes the manifest promises.
func ResolveArgs(step *pipeline.Step, params map[string]cty.Value, p *pipeline.Pipeline, states map[string]runstate.StepStatus) (map[string]cty.Value, error) {
	scope := &jobScope{pipeline: p, params: params, states: states}

	args := make(map[string]cty.Value, len(step.Signature.Inputs))
	for _, in := range step.Signature.Inputs {
		e, supplied := step.Inputs[in.Name]
		if !supplied {
			if in.Default != cty.NilVal {
				args[in.Name] = in.Default
			} else {
				args[in.Name] = cty.NullVal(in.Type)
			}
			continue
		}

		v, err := e.Evaluate(scope)
		if err != nil {
			return nil, err
		}
		if !in.Type.Equals(cty.DynamicPseudoType) {
			converted, err := convert.Convert(v, in.Type)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			v = converted
		}
		args[in.Name] = v
	}
	return args, nil
}
