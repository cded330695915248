// Package worker implements the worker pool: a fixed number of goroutines
// competing on the work queue, each executing plugin handlers and recording
// terminal transitions in the run-state store. Workers are stateless between
// items; everything a step needs arrives inside the work item.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

// DefaultPoolSize is the worker count used when the configuration does not
// set one.
const DefaultPoolSize = 4

// Completion notifies the engine that a step reached a terminal state.
type Completion struct {
	JobID string
	Step  string
	State runstate.State
}

// Pool executes dequeued work items on a fixed set of goroutines.
type Pool struct {
	registry    *catalog.Registry
	store       runstate.Store
	queue       queue.Queue
	size        int
	completions chan<- Completion
}

// NewPool creates a pool of the given size. Completions for every terminal
// transition the pool records are sent to the completions channel.
func NewPool(registry *catalog.Registry, store runstate.Store, q queue.Queue, size int, completions chan<- Completion) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		registry:    registry,
		store:       store,
		queue:       q,
		size:        size,
		completions: completions,
	}
}

// Run blocks until ctx is cancelled, serving work items on p.size
// goroutines.
func (p *Pool) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting worker pool.", "size", p.size)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.serve(ctx, id)
		}(i)
	}
	wg.Wait()
	logger.Debug("Worker pool stopped.")
}

func (p *Pool) serve(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)

	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error("Dequeue failed.", "error", err)
			continue
		}
		p.execute(ctxlog.WithLogger(ctx, logger), item)
	}
}

// execute runs one work item end to end. Duplicate deliveries of an already
// terminal step are dropped without executing the plugin.
func (p *Pool) execute(ctx context.Context, item *queue.WorkItem) {
	logger := ctxlog.FromContext(ctx).With("job", item.JobID, "step", item.Step, "plugin", item.Plugin)

	states, err := p.store.ReadState(ctx, item.JobID)
	if err != nil {
		logger.Error("Reading run state failed.", "error", err)
		return
	}
	if states[item.Step].State.Terminal() {
		logger.Debug("Dropping duplicate delivery of terminal step.")
		return
	}

	sig, ok := p.registry.Lookup(item.Plugin)
	if !ok {
		p.recordFailure(ctx, item, fmt.Sprintf("no signature registered for plugin %q", item.Plugin))
		return
	}
	handler, ok := p.registry.Handler(item.Plugin)
	if !ok {
		p.recordFailure(ctx, item, fmt.Sprintf("no handler registered for plugin %q", item.Plugin))
		return
	}

	logger.Debug("Executing step.")
	outputs, err := p.invokeWithTimeout(ctx, item, handler, sig)
	if err != nil {
		var timeoutErr *runstate.TimeoutError
		if errors.As(err, &timeoutErr) {
			p.recordFailure(ctx, item, err.Error())
			return
		}
		execErr := &runstate.PluginExecutionError{Step: item.Step, Plugin: item.Plugin, Message: err.Error()}
		p.recordFailure(ctx, item, execErr.Error())
		return
	}

	applied, err := p.store.RecordTransition(ctx, item.JobID, item.Step, runstate.Transition{
		To:      runstate.Succeeded,
		Outputs: outputs,
	})
	if err != nil {
		logger.Error("Recording success failed.", "error", err)
		return
	}
	if applied {
		p.notify(ctx, item, runstate.Succeeded)
	}
	logger.Debug("Step succeeded.")
}

// invokeWithTimeout bounds the handler call with the item's timeout. A
// handler that overruns keeps running in its goroutine until it observes
// ctx cancellation; its eventual result is discarded because the step is
// already Failed.
func (p *Pool) invokeWithTimeout(ctx context.Context, item *queue.WorkItem, h *catalog.Handler, sig *catalog.Signature) (map[string]cty.Value, error) {
	timeout := item.Timeout
	if timeout <= 0 {
		return invoke(ctx, h, sig, item.Args)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		outputs map[string]cty.Value
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outputs, err := invoke(callCtx, h, sig, item.Args)
		done <- result{outputs, err}
	}()

	select {
	case r := <-done:
		return r.outputs, r.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &runstate.TimeoutError{Step: item.Step, Timeout: timeout}
		}
		return nil, callCtx.Err()
	}
}

func (p *Pool) recordFailure(ctx context.Context, item *queue.WorkItem, message string) {
	logger := ctxlog.FromContext(ctx)
	logger.Error("Step failed.", "job", item.JobID, "step", item.Step, "error", message)

	applied, err := p.store.RecordTransition(ctx, item.JobID, item.Step, runstate.Transition{
		To:    runstate.Failed,
		Error: message,
	})
	if err != nil {
		logger.Error("Recording failure failed.", "error", err)
		return
	}
	if applied {
		p.notify(ctx, item, runstate.Failed)
	}
}

func (p *Pool) notify(ctx context.Context, item *queue.WorkItem, state runstate.State) {
	if p.completions == nil {
		return
	}
	select {
	case p.completions <- Completion{JobID: item.JobID, Step: item.Step, State: state}:
	case <-ctx.Done():
	}
}
