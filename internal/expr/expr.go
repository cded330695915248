// Package expr defines the input-expression AST for pipeline steps and the
// scanner for the `$name(.field)*` reference grammar.
//
// Every step input is parsed exactly once, at pipeline-parse time, into an
// Expression. Execution never re-scans strings: the dispatcher evaluates the
// AST against a Scope that projects recorded runtime values.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Reference identifies a data dependency expressed as `$name` or
// `$name.path.to.field`. Name is either another step in the same pipeline or
// an entrypoint parameter; the distinction is made during graph construction,
// not here.
type Reference struct {
	Name string
	Path []string
}

// String renders the reference back in its source form.
func (r Reference) String() string {
	if len(r.Path) == 0 {
		return "$" + r.Name
	}
	return "$" + r.Name + "." + strings.Join(r.Path, ".")
}

// Scope resolves references to concrete runtime values during dispatch.
type Scope interface {
	// ResolveReference returns the value a reference denotes. For a step
	// reference the implementation projects the recorded output values of
	// the producing step along the reference path.
	ResolveReference(ref Reference) (cty.Value, error)
}

// Expression is a parsed step input: a literal, a reference, a string
// template interleaving both, or a collection containing any of these.
type Expression interface {
	// References returns every reference the expression contains, in
	// deterministic order, without duplicates.
	References() []Reference

	// Evaluate materializes the expression into a concrete value.
	Evaluate(scope Scope) (cty.Value, error)
}

// Literal is a constant value containing no references.
type Literal struct {
	Value cty.Value
}

func (l *Literal) References() []Reference { return nil }

func (l *Literal) Evaluate(Scope) (cty.Value, error) { return l.Value, nil }

// Ref is an expression consisting of exactly one reference, e.g. the whole
// input string is `$train.model_uri`. Its evaluated value keeps the
// producer's type; it is not stringified.
type Ref struct {
	Reference
}

func (r *Ref) References() []Reference { return []Reference{r.Reference} }

func (r *Ref) Evaluate(scope Scope) (cty.Value, error) {
	return scope.ResolveReference(r.Reference)
}

// Template is a string mixing literal text with one or more references, e.g.
// `"runs/$prep.id/model"`. Referenced values are converted to string during
// evaluation.
type Template struct {
	// Parts alternate between *Literal (string segments) and *Ref.
	Parts []Expression
}

func (t *Template) References() []Reference {
	return dedupe(collect(t.Parts))
}

func (t *Template) Evaluate(scope Scope) (cty.Value, error) {
	var sb strings.Builder
	for _, part := range t.Parts {
		v, err := part.Evaluate(scope)
		if err != nil {
			return cty.NilVal, err
		}
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot interpolate value of type %s into string: %w", v.Type().FriendlyName(), err)
		}
		if s.IsNull() {
			return cty.NilVal, fmt.Errorf("cannot interpolate null value into string")
		}
		sb.WriteString(s.AsString())
	}
	return cty.StringVal(sb.String()), nil
}

// List is a sequence literal whose elements may themselves contain
// references.
type List struct {
	Elems []Expression
}

func (l *List) References() []Reference {
	return dedupe(collect(l.Elems))
}

func (l *List) Evaluate(scope Scope) (cty.Value, error) {
	if len(l.Elems) == 0 {
		return cty.EmptyTupleVal, nil
	}
	vals := make([]cty.Value, 0, len(l.Elems))
	for _, e := range l.Elems {
		v, err := e.Evaluate(scope)
		if err != nil {
			return cty.NilVal, err
		}
		vals = append(vals, v)
	}
	return cty.TupleVal(vals), nil
}

// Mapping is a mapping literal whose values may themselves contain
// references. Keys are plain strings; the reference grammar does not apply
// to keys.
type Mapping struct {
	Entries map[string]Expression
}

func (m *Mapping) References() []Reference {
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var refs []Reference
	for _, k := range keys {
		refs = append(refs, m.Entries[k].References()...)
	}
	return dedupe(refs)
}

func (m *Mapping) Evaluate(scope Scope) (cty.Value, error) {
	if len(m.Entries) == 0 {
		return cty.EmptyObjectVal, nil
	}
	vals := make(map[string]cty.Value, len(m.Entries))
	for k, e := range m.Entries {
		v, err := e.Evaluate(scope)
		if err != nil {
			return cty.NilVal, err
		}
		vals[k] = v
	}
	return cty.ObjectVal(vals), nil
}

func collect(exprs []Expression) []Reference {
	var refs []Reference
	for _, e := range exprs {
		refs = append(refs, e.References()...)
	}
	return refs
}

func dedupe(refs []Reference) []Reference {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, r := range refs {
		key := r.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
