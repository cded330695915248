package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/engine"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/queue"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
	"github.com/specialistvlad/mlgridgo/internal/scheduler"
)

// Run executes the configured pipeline end to end: parse, submit, wait, and
// report. It returns an error when the run does not fully succeed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	src, err := os.ReadFile(a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("reading pipeline document: %w", err)
	}
	p, err := pipeline.Parse(ctx, src, a.registry, a.registry.Types())
	if err != nil {
		return fmt.Errorf("parsing pipeline: %w", err)
	}
	a.logger.Debug("Pipeline parsed.", "pipeline", p.Name, "steps", len(p.Steps))

	store, err := a.newStore()
	if err != nil {
		return err
	}
	q, err := a.newQueue()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := engine.New(a.registry, store, q, engine.Options{
		Workers:     a.config.Workers,
		StepTimeout: a.config.StepTimeout,
	})
	eng.Start(runCtx)

	overrides := make(map[string]cty.Value, len(a.config.Params))
	for name, raw := range a.config.Params {
		overrides[name] = cty.StringVal(raw)
	}

	a.logger.Info("🚀 Starting pipeline execution.", "pipeline", p.Name)
	jobID, err := eng.Submit(runCtx, p, overrides)
	if err != nil {
		return fmt.Errorf("submitting pipeline: %w", err)
	}

	states, err := eng.Wait(ctx, jobID)
	if err != nil {
		return err
	}
	a.report(jobID, states)

	if !scheduler.Succeeded(states) {
		return fmt.Errorf("pipeline %q did not fully succeed", p.Name)
	}
	a.logger.Info("🏁 Pipeline execution finished.", "job", jobID)
	return nil
}

// report logs the terminal state of every step, failures first by severity.
func (a *App) report(jobID string, states map[string]runstate.StepStatus) {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := states[name]
		switch status.State {
		case runstate.Failed:
			a.logger.Error("Step failed.", "job", jobID, "step", name, "error", status.Error)
		case runstate.Skipped:
			a.logger.Warn("Step skipped.", "job", jobID, "step", name, "reason", status.Error)
		default:
			a.logger.Info("Step finished.", "job", jobID, "step", name, "state", status.State.String())
		}
	}
}

func (a *App) newStore() (runstate.Store, error) {
	switch a.config.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		return runstate.NewRedisStore(rdb), nil
	default:
		return runstate.NewMemStore(), nil
	}
}

func (a *App) newQueue() (queue.Queue, error) {
	switch a.config.Queue {
	case "nats":
		nc, err := nats.Connect(a.config.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		return queue.NewNatsQueue(nc)
	default:
		return queue.NewMemQueue(256), nil
	}
}
