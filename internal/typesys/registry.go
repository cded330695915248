// Package typesys implements the parameter type registry: the catalog of
// primitive and structured types that plugin signatures and entrypoint
// parameters are declared against, plus the structural compatibility rules
// used by the validator.
//
// All types resolve to cty.Type. The registry adds a layer of user-defined
// composite types (named object types) on top of the built-in keywords, so a
// manifest can declare `type "metrics" { ... }` once and reference `metrics`
// from any input or output.
package typesys

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Registry holds named composite types. Built-in type keywords (string,
// number, bool, any and the list/map/set/object constructors) are resolved
// by the parser and never stored here.
//
// A Registry is mutated only while manifests load; afterwards it is
// effectively immutable and safe for concurrent readers.
type Registry struct {
	mu         sync.RWMutex
	composites map[string]cty.Type
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{composites: make(map[string]cty.Type)}
}

// RegisterComposite registers a named composite type. Registration is
// write-once: redefining a name is a programmer error and fails loudly so a
// manifest cannot silently shadow another module's type.
func (r *Registry) RegisterComposite(name string, ty cty.Type) error {
	if isBuiltinKeyword(name) {
		return fmt.Errorf("type name %q shadows a built-in type keyword", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.composites[name]; ok {
		return fmt.Errorf("composite type %q already registered as %s", name, existing.FriendlyName())
	}
	r.composites[name] = ty
	return nil
}

// Lookup resolves a previously registered composite type by name.
func (r *Registry) Lookup(name string) (cty.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ty, ok := r.composites[name]
	return ty, ok
}

// Names returns the sorted names of all registered composite types.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.composites))
	for name := range r.composites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isBuiltinKeyword reports whether name is reserved by the type expression
// grammar. The integer/float aliases exist because experiment authors coming
// from Python-side tooling declare them; both map to cty.Number.
func isBuiltinKeyword(name string) bool {
	switch name {
	case "string", "number", "integer", "float", "bool", "boolean", "any",
		"list", "map", "set", "object", "tuple":
		return true
	}
	return false
}
