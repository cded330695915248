// This file contains the logic for parsing type expressions (e.g. `string`,
// `list(number)`, `object({loss = number})`) into their cty.Type equivalents.

package typesys

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ParseTypeString parses a standalone type expression from a string. It is
// used for entrypoint parameter declarations in pipeline documents, where the
// type arrives as a YAML scalar rather than a native HCL expression.
func (r *Registry) ParseTypeString(src string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "<type>", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilType, fmt.Errorf("invalid type expression %q: %s", src, diags.Error())
	}
	return r.ParseTypeExpr(expr)
}

// ParseTypeExpr converts an HCL type expression into its cty.Type equivalent.
// Bare identifiers resolve first to built-in keywords, then to registered
// composite types.
func (r *Registry) ParseTypeExpr(expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}

	// A type switch over the concrete hclsyntax expression kinds is the
	// same approach HCL's own typeexpr extension takes; doing it here keeps
	// composite-name resolution inside the registry.
	switch v := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.NilType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		return r.resolveKeyword(v.Traversal.RootName())

	case *hclsyntax.FunctionCallExpr:
		if len(v.Args) != 1 {
			return cty.NilType, fmt.Errorf("type constructor %q requires exactly one argument, got %d", v.Name, len(v.Args))
		}
		switch v.Name {
		case "list", "map", "set":
			elementType, err := r.ParseTypeExpr(v.Args[0])
			if err != nil {
				return cty.NilType, err
			}
			switch v.Name {
			case "list":
				return cty.List(elementType), nil
			case "map":
				return cty.Map(elementType), nil
			default:
				return cty.Set(elementType), nil
			}
		case "object":
			return r.parseObjectType(v.Args[0])
		case "tuple":
			return r.parseTupleType(v.Args[0])
		default:
			return cty.NilType, fmt.Errorf("unknown type constructor function %q", v.Name)
		}

	default:
		return cty.NilType, fmt.Errorf("unsupported expression for type definition: %T", v)
	}
}

// resolveKeyword maps a bare identifier to a type: built-in keywords first,
// then registered composites.
func (r *Registry) resolveKeyword(name string) (cty.Type, error) {
	switch name {
	case "string":
		return cty.String, nil
	case "number", "integer", "float":
		return cty.Number, nil
	case "bool", "boolean":
		return cty.Bool, nil
	case "any":
		return cty.DynamicPseudoType, nil
	}
	if ty, ok := r.Lookup(name); ok {
		return ty, nil
	}
	return cty.NilType, fmt.Errorf("unknown type %q", name)
}

// parseObjectType handles the `object({name = type, ...})` constructor form.
func (r *Registry) parseObjectType(arg hcl.Expression) (cty.Type, error) {
	cons, ok := arg.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.NilType, fmt.Errorf("object constructor requires an attribute map argument, got %T", arg)
	}
	attrs := make(map[string]cty.Type, len(cons.Items))
	for _, item := range cons.Items {
		name := hcl.ExprAsKeyword(item.KeyExpr)
		if name == "" {
			return cty.NilType, fmt.Errorf("object attribute names must be bare identifiers")
		}
		attrType, err := r.ParseTypeExpr(item.ValueExpr)
		if err != nil {
			return cty.NilType, fmt.Errorf("object attribute %q: %w", name, err)
		}
		attrs[name] = attrType
	}
	return cty.Object(attrs), nil
}

// parseTupleType handles the `tuple([type, ...])` constructor form.
func (r *Registry) parseTupleType(arg hcl.Expression) (cty.Type, error) {
	cons, ok := arg.(*hclsyntax.TupleConsExpr)
	if !ok {
		return cty.NilType, fmt.Errorf("tuple constructor requires a list argument, got %T", arg)
	}
	elems := make([]cty.Type, 0, len(cons.Exprs))
	for i, e := range cons.Exprs {
		elemType, err := r.ParseTypeExpr(e)
		if err != nil {
			return cty.NilType, fmt.Errorf("tuple element %d: %w", i, err)
		}
		elems = append(elems, elemType)
	}
	return cty.Tuple(elems), nil
}
