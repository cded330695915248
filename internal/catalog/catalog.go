// Package catalog implements the plugin signature catalog: the immutable,
// per-plugin declaration of named, typed input and output parameters, plus
// the registry of Go handler functions the worker pool invokes.
//
// Signatures are declared in HCL manifests (see manifest.go) and are never
// mutated after load; a new plugin version is a new signature under a new
// id. The catalog is handed to the pipeline parser and validator as an
// explicit dependency rather than living in package-level state.
package catalog

import (
	"github.com/zclconf/go-cty/cty"
)

// InputSpec declares one named input parameter of a plugin.
type InputSpec struct {
	Name        string
	Type        cty.Type
	Description string

	// Required is true when the pipeline must supply the input. An input is
	// optional when the manifest marks it `optional` or gives it a default.
	Required bool

	// Default is the value used when an optional input is not supplied.
	// NilVal means no default.
	Default cty.Value
}

// OutputSpec declares one named output parameter of a plugin.
type OutputSpec struct {
	Name        string
	Type        cty.Type
	Description string
}

// Signature is the declared call contract of one plugin task.
type Signature struct {
	ID          string
	Description string

	// Inputs and Outputs preserve manifest declaration order.
	Inputs  []*InputSpec
	Outputs []*OutputSpec

	inputIndex  map[string]*InputSpec
	outputIndex map[string]*OutputSpec
}

// Input looks up an input parameter by name.
func (s *Signature) Input(name string) (*InputSpec, bool) {
	in, ok := s.inputIndex[name]
	return in, ok
}

// Output looks up an output parameter by name.
func (s *Signature) Output(name string) (*OutputSpec, bool) {
	out, ok := s.outputIndex[name]
	return out, ok
}

// SingleOutput returns the plugin's sole output parameter. Whole-step
// references (`$step` with no field path) are only legal against plugins
// where this returns true.
func (s *Signature) SingleOutput() (*OutputSpec, bool) {
	if len(s.Outputs) != 1 {
		return nil, false
	}
	return s.Outputs[0], true
}

// OutputObjectType returns the object type an execution result must
// structurally satisfy: one attribute per declared output.
func (s *Signature) OutputObjectType() cty.Type {
	attrs := make(map[string]cty.Type, len(s.Outputs))
	for _, out := range s.Outputs {
		attrs[out.Name] = out.Type
	}
	return cty.Object(attrs)
}

// buildIndexes populates the name lookup maps after construction.
func (s *Signature) buildIndexes() {
	s.inputIndex = make(map[string]*InputSpec, len(s.Inputs))
	for _, in := range s.Inputs {
		s.inputIndex[in.Name] = in
	}
	s.outputIndex = make(map[string]*OutputSpec, len(s.Outputs))
	for _, out := range s.Outputs {
		s.outputIndex[out.Name] = out
	}
}

// Catalog is the read-only signature lookup interface consumed by the
// pipeline parser and the validator.
type Catalog interface {
	Lookup(pluginID string) (*Signature, bool)
}
