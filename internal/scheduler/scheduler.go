// Package scheduler derives scheduling decisions from the dependency graph
// and the current run state. It is pure computation: the engine's job loop
// asks it what to do and the dispatcher acts on the answers. Sibling steps
// that become Ready together are dispatched in no particular order;
// ordering between independent steps is deliberately unspecified.
package scheduler

import (
	"github.com/specialistvlad/mlgridgo/internal/graph"
	"github.com/specialistvlad/mlgridgo/internal/runstate"
)

// Scheduler answers readiness and skip questions for one graph.
type Scheduler struct {
	graph *graph.Graph
}

// New creates a scheduler over a built graph.
func New(g *graph.Graph) *Scheduler {
	return &Scheduler{graph: g}
}

// ReadySteps returns the Pending steps whose dependencies have all
// Succeeded, in topological document order.
func (s *Scheduler) ReadySteps(states map[string]runstate.StepStatus) []string {
	var ready []string
	for _, name := range s.graph.TopoOrder() {
		if states[name].State != runstate.Pending {
			continue
		}
		if s.dependenciesSucceeded(name, states) {
			ready = append(ready, name)
		}
	}
	return ready
}

func (s *Scheduler) dependenciesSucceeded(step string, states map[string]runstate.StepStatus) bool {
	for _, dep := range s.graph.Dependencies(step) {
		if states[dep].State != runstate.Succeeded {
			return false
		}
	}
	return true
}

// SkipSet returns the transitive dependents of a failed or skipped step
// that are not yet terminal. Steps on independent branches are unaffected.
func (s *Scheduler) SkipSet(step string, states map[string]runstate.StepStatus) []string {
	var skip []string
	for _, name := range s.graph.TransitiveDependents(step) {
		if !states[name].State.Terminal() {
			skip = append(skip, name)
		}
	}
	return skip
}

// LiveSteps returns the steps not yet in a terminal state, used by job
// cancellation.
func (s *Scheduler) LiveSteps(states map[string]runstate.StepStatus) []string {
	var live []string
	for _, name := range s.graph.TopoOrder() {
		if !states[name].State.Terminal() {
			live = append(live, name)
		}
	}
	return live
}

// Done reports whether every step has reached a terminal state.
func Done(states map[string]runstate.StepStatus) bool {
	for _, status := range states {
		if !status.State.Terminal() {
			return false
		}
	}
	return true
}

// Succeeded reports whether every step Succeeded.
func Succeeded(states map[string]runstate.StepStatus) bool {
	for _, status := range states {
		if status.State != runstate.Succeeded {
			return false
		}
	}
	return true
}
