// This file implements the structural compatibility predicate used by the
// validator. The rules are deliberately stricter than cty's own conversion
// table: cty treats number-to-string as a safe conversion, but a pipeline
// wiring an integer output into a string input is almost always a bug, so
// primitives require exact equality and no coercion happens anywhere.

package typesys

import (
	"github.com/zclconf/go-cty/cty"
)

// Compatible reports whether a value of type `from` may be supplied where
// type `to` is declared.
//
// Compatibility is structural, not nominal:
//   - `any` (DynamicPseudoType) on either side defers the check to runtime.
//   - Primitives must match exactly.
//   - An object or mapping literal satisfies a declared object type when it
//     carries every declared attribute with a compatible type. Extra
//     attributes are ignored.
//   - A tuple satisfies a declared list/set when every element is
//     compatible with the element type; this is how YAML sequence literals
//     (parsed as tuples) satisfy list inputs.
func Compatible(from, to cty.Type) bool {
	if from == cty.NilType || to == cty.NilType {
		return false
	}
	if to.Equals(cty.DynamicPseudoType) || from.Equals(cty.DynamicPseudoType) {
		return true
	}

	switch {
	case to.IsPrimitiveType():
		return from.Equals(to)

	case to.IsObjectType():
		switch {
		case from.IsObjectType():
			for name, attrType := range to.AttributeTypes() {
				if !from.HasAttribute(name) {
					return false
				}
				if !Compatible(from.AttributeType(name), attrType) {
					return false
				}
			}
			return true
		case from.IsMapType():
			elem := from.ElementType()
			for _, attrType := range to.AttributeTypes() {
				if !Compatible(elem, attrType) {
					return false
				}
			}
			return true
		default:
			return false
		}

	case to.IsListType(), to.IsSetType():
		switch {
		case from.IsListType(), from.IsSetType():
			return Compatible(from.ElementType(), to.ElementType())
		case from.IsTupleType():
			for _, elemType := range from.TupleElementTypes() {
				if !Compatible(elemType, to.ElementType()) {
					return false
				}
			}
			return true
		default:
			return false
		}

	case to.IsMapType():
		switch {
		case from.IsMapType():
			return Compatible(from.ElementType(), to.ElementType())
		case from.IsObjectType():
			for name := range from.AttributeTypes() {
				if !Compatible(from.AttributeType(name), to.ElementType()) {
					return false
				}
			}
			return true
		default:
			return false
		}

	case to.IsTupleType():
		if !from.IsTupleType() {
			return false
		}
		fromElems := from.TupleElementTypes()
		toElems := to.TupleElementTypes()
		if len(fromElems) != len(toElems) {
			return false
		}
		for i := range toElems {
			if !Compatible(fromElems[i], toElems[i]) {
				return false
			}
		}
		return true

	default:
		return from.Equals(to)
	}
}

// StringableType reports whether values of the given type can appear inside
// a string template. Only primitives interpolate; splicing an object or list
// into a string is rejected statically.
func StringableType(ty cty.Type) bool {
	return ty.Equals(cty.DynamicPseudoType) || ty.IsPrimitiveType()
}
