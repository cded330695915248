// This file converts native Go values decoded from a pipeline document into
// cty values. YAML sequences become tuples and YAML mappings become objects,
// so literal shapes stay fully structural for the validator.

package expr

import (
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
)

func stringLiteral(s string) cty.Value {
	return cty.StringVal(s)
}

// FromGoValue converts a Go value produced by yaml.v3 (or a test fixture)
// into its cty equivalent.
func FromGoValue(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case int:
		return cty.NumberIntVal(int64(val)), nil
	case int64:
		return cty.NumberIntVal(val), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case *big.Float:
		return cty.NumberVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(val))
		for i, e := range val {
			ev, err := FromGoValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("list element %d: %w", i, err)
			}
			elems = append(elems, ev)
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, e := range val {
			ev, err := FromGoValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", k, err)
			}
			attrs[k] = ev
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported literal of type %T", v)
	}
}

// ParseGoValue converts a Go value into an Expression, scanning strings for
// references and recursing into collections so that a list or mapping
// literal may carry references in its elements.
func ParseGoValue(v any) (Expression, error) {
	switch val := v.(type) {
	case string:
		return ParseString(val), nil
	case []any:
		elems := make([]Expression, 0, len(val))
		hasRefs := false
		for i, e := range val {
			ee, err := ParseGoValue(e)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			if len(ee.References()) > 0 {
				hasRefs = true
			}
			elems = append(elems, ee)
		}
		if !hasRefs {
			lit, err := FromGoValue(v)
			if err != nil {
				return nil, err
			}
			return &Literal{Value: lit}, nil
		}
		return &List{Elems: elems}, nil
	case map[string]any:
		entries := make(map[string]Expression, len(val))
		hasRefs := false
		for k, e := range val {
			ee, err := ParseGoValue(e)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", k, err)
			}
			if len(ee.References()) > 0 {
				hasRefs = true
			}
			entries[k] = ee
		}
		if !hasRefs {
			lit, err := FromGoValue(v)
			if err != nil {
				return nil, err
			}
			return &Literal{Value: lit}, nil
		}
		return &Mapping{Entries: entries}, nil
	default:
		lit, err := FromGoValue(v)
		if err != nil {
			return nil, err
		}
		return &Literal{Value: lit}, nil
	}
}
