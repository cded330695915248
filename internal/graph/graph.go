// Package graph implements the reference resolver and the topological
// scheduler's static half: it derives dependency edges from the parsed input
// expressions of every step, then orders the steps so that every producer
// precedes its consumers.
//
// Edges are derived, never stored: each Build recomputes the whole edge set
// from the pipeline, so a partially linked graph is never observable.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/expr"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
)

// Edge is one data dependency: Consumer's input named Input references
// Producer's output addressed by Path. An empty Path denotes the producer's
// sole output.
type Edge struct {
	Producer string
	Consumer string
	Input    string
	Path     []string
}

// Graph is a validated-acyclic view over a Pipeline: the pipeline's steps
// plus their derived dependency edges and a topological order. A Graph is
// immutable after Build.
type Graph struct {
	Pipeline *pipeline.Pipeline

	edges      []Edge
	deps       map[string][]string
	dependents map[string][]string
	order      []string
}

// Build constructs the dependency graph for a parsed pipeline in two phases:
// all step nodes exist before any reference is resolved, so declaration
// order in the document never matters. It fails with
// UnknownStepReferenceError for dangling or self references and with
// CyclicDependencyError when the edge set contains a cycle.
func Build(ctx context.Context, p *pipeline.Pipeline) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "steps", len(p.Steps))

	g := &Graph{
		Pipeline:   p,
		deps:       make(map[string][]string, len(p.Steps)),
		dependents: make(map[string][]string, len(p.Steps)),
	}

	// Phase 2 (phase 1, node creation, already happened in the parser):
	// resolve every reference in every input expression into an edge.
	for _, step := range p.Steps {
		inputNames := make([]string, 0, len(step.Inputs))
		for name := range step.Inputs {
			inputNames = append(inputNames, name)
		}
		sort.Strings(inputNames)

		for _, inputName := range inputNames {
			for _, ref := range step.Inputs[inputName].References() {
				edge, err := g.resolveReference(step, inputName, ref)
				if err != nil {
					return nil, err
				}
				if edge != nil {
					g.addEdge(*edge)
				}
			}
		}
	}
	logger.Debug("Build: reference resolution complete.", "edges", len(g.edges))

	if err := g.sortTopologically(); err != nil {
		return nil, err
	}
	logger.Debug("Build: topological ordering complete.")
	return g, nil
}

// resolveReference classifies one reference: a step reference yields an
// edge, an entrypoint-parameter reference yields none, anything else is a
// structural error.
func (g *Graph) resolveReference(step *pipeline.Step, inputName string, ref expr.Reference) (*Edge, error) {
	if ref.Name == step.Name {
		return nil, &pipeline.UnknownStepReferenceError{Step: step.Name, Ref: ref.String(), Self: true}
	}
	if _, ok := g.Pipeline.Step(ref.Name); ok {
		return &Edge{Producer: ref.Name, Consumer: step.Name, Input: inputName, Path: ref.Path}, nil
	}
	if _, ok := g.Pipeline.Param(ref.Name); ok {
		return nil, nil
	}
	return nil, &pipeline.UnknownStepReferenceError{Step: step.Name, Ref: ref.String()}
}

func (g *Graph) addEdge(e Edge) {
	g.edges = append(g.edges, e)

	if !contains(g.deps[e.Consumer], e.Producer) {
		g.deps[e.Consumer] = append(g.deps[e.Consumer], e.Producer)
	}
	if !contains(g.dependents[e.Producer], e.Consumer) {
		g.dependents[e.Producer] = append(g.dependents[e.Producer], e.Consumer)
	}
}

// Edges returns every derived dependency edge.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Dependencies returns the unique producer steps a step depends on.
func (g *Graph) Dependencies(step string) []string {
	return g.deps[step]
}

// Dependents returns the unique steps directly depending on a step.
func (g *Graph) Dependents(step string) []string {
	return g.dependents[step]
}

// TransitiveDependents returns every step downstream of the given step.
// This is the set that must be skipped when the step fails.
func (g *Graph) TransitiveDependents(step string) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(name string)
	walk = func(name string) {
		for _, dep := range g.dependents[name] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(step)
	return out
}

// TopoOrder returns the step names in one valid topological order. Ties
// among independent steps fall back to document order; nothing may rely on
// that beyond test readability.
func (g *Graph) TopoOrder() []string {
	return g.order
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// String renders the edge set for diagnostics.
func (e Edge) String() string {
	ref := "$" + e.Producer
	for _, seg := range e.Path {
		ref += "." + seg
	}
	return fmt.Sprintf("%s -> %s (input %q, %s)", e.Producer, e.Consumer, e.Input, ref)
}
