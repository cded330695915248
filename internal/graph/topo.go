// This file implements the topological ordering over the derived edge set
// using Kahn's algorithm, with cycle extraction for the error message.

package graph

import (
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
)

// sortTopologically computes g.order or fails with CyclicDependencyError.
// The ready queue is seeded and appended in document order, which makes the
// order deterministic for diagnostics without promising any execution
// ordering among independent steps.
func (g *Graph) sortTopologically() error {
	indegree := make(map[string]int, len(g.Pipeline.Steps))
	for _, step := range g.Pipeline.Steps {
		indegree[step.Name] = len(g.deps[step.Name])
	}

	var queue []string
	for _, step := range g.Pipeline.Steps {
		if indegree[step.Name] == 0 {
			queue = append(queue, step.Name)
		}
	}

	order := make([]string, 0, len(g.Pipeline.Steps))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dependent := range g.dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Pipeline.Steps) {
		return &pipeline.CyclicDependencyError{Cycle: g.extractCycle(indegree)}
	}
	g.order = order
	return nil
}

// extractCycle walks the steps Kahn could not order and returns one concrete
// cycle through them, closed back onto its first member.
func (g *Graph) extractCycle(indegree map[string]int) []string {
	remaining := make(map[string]bool)
	var start string
	for _, step := range g.Pipeline.Steps {
		if indegree[step.Name] > 0 {
			remaining[step.Name] = true
			if start == "" {
				start = step.Name
			}
		}
	}

	// Every remaining node has at least one remaining predecessor, so
	// walking predecessors from any remaining node must revisit one.
	seen := make(map[string]int)
	path := []string{}
	current := start
	for {
		if idx, ok := seen[current]; ok {
			cycle := append([]string{}, path[idx:]...)
			cycle = append(cycle, current)
			return cycle
		}
		seen[current] = len(path)
		path = append(path, current)

		next := ""
		for _, producer := range g.deps[current] {
			if remaining[producer] {
				next = producer
				break
			}
		}
		if next == "" {
			// Unreachable for a true cycle; fall back to naming the
			// unordered steps.
			return path
		}
		current = next
	}
}
