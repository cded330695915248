// Package pipeline implements the graph parser: it turns a declarative
// step-graph document into an internal model of step nodes, each bound to a
// plugin signature from the catalog and a map of parsed input expressions.
//
// Parsing is purely structural. Dependency resolution lives in
// internal/graph and type checking in internal/validate; a Pipeline value is
// the input to both.
package pipeline

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/expr"
)

// Param is one entrypoint-level parameter declaration. Its value may be
// overridden at job submission and is referenced from step inputs with the
// same `$name` grammar as step outputs.
type Param struct {
	Name    string
	Type    cty.Type
	Default cty.Value // NilVal when the parameter has no default
}

// Step is one node of the step graph: a unique name, a bound plugin
// signature, and a mapping from input-parameter name to parsed expression.
type Step struct {
	Name      string
	Plugin    string
	Signature *catalog.Signature
	Inputs    map[string]expr.Expression
}

// Pipeline is the parsed form of one step-graph document. It preserves the
// document's step order, which matters only for readable diagnostics; the
// execution order is derived from dependencies alone.
type Pipeline struct {
	Name   string
	Params []*Param
	Steps  []*Step

	paramIndex map[string]*Param
	stepIndex  map[string]*Step
}

// Step looks up a step by name.
func (p *Pipeline) Step(name string) (*Step, bool) {
	s, ok := p.stepIndex[name]
	return s, ok
}

// Param looks up an entrypoint parameter by name.
func (p *Pipeline) Param(name string) (*Param, bool) {
	prm, ok := p.paramIndex[name]
	return prm, ok
}

// StepNames returns the step names in document order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

func (p *Pipeline) buildIndexes() {
	p.paramIndex = make(map[string]*Param, len(p.Params))
	for _, prm := range p.Params {
		p.paramIndex[prm.Name] = prm
	}
	p.stepIndex = make(map[string]*Step, len(p.Steps))
	for _, s := range p.Steps {
		p.stepIndex[s.Name] = s
	}
}
