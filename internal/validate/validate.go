// Package validate implements the static validator. It runs after graph
// construction and before any job exists, in two passes:
//
//  1. Output-path validation: every edge's dotted path must resolve against
//     the producing plugin's declared outputs.
//  2. Input validation: every required input is supplied, no unknown input
//     names are supplied, literals are shape-compatible with the declared
//     parameter type, and reference expressions connect compatible types.
//
// Validation needs no runtime values; a pipeline that fails here is never
// scheduled.
package validate

import (
	"context"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/expr"
	"github.com/specialistvlad/mlgridgo/internal/graph"
	"github.com/specialistvlad/mlgridgo/internal/pipeline"
	"github.com/specialistvlad/mlgridgo/internal/typesys"
)

// Validate checks the whole graph statically. The first failure is
// returned; pipelines are expected to be edited interactively, so one
// actionable error at a time beats a flood.
func Validate(ctx context.Context, g *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)

	for _, edge := range g.Edges() {
		producer, _ := g.Pipeline.Step(edge.Producer)
		if _, err := outputPathType(edge.Consumer, producer, edge.Path); err != nil {
			return err
		}
	}
	logger.Debug("Validate: output-path pass complete.", "edges", len(g.Edges()))

	for _, step := range g.Pipeline.Steps {
		if err := validateStepInputs(g, step); err != nil {
			return err
		}
	}
	logger.Debug("Validate: input pass complete.", "steps", len(g.Pipeline.Steps))
	return nil
}

// validateStepInputs checks cardinality and types of one step's supplied
// inputs against its signature.
func validateStepInputs(g *graph.Graph, step *pipeline.Step) error {
	for _, in := range step.Signature.Inputs {
		if _, supplied := step.Inputs[in.Name]; !supplied && in.Required {
			return &pipeline.MissingInputError{Step: step.Name, Input: in.Name}
		}
	}

	for inputName, e := range step.Inputs {
		in, ok := step.Signature.Input(inputName)
		if !ok {
			return &pipeline.UnknownInputError{Step: step.Name, Plugin: step.Plugin, Input: inputName}
		}
		if err := checkExpression(g, step, in, e); err != nil {
			return err
		}
	}
	return nil
}

// checkExpression checks one input expression against its declared type.
func checkExpression(g *graph.Graph, step *pipeline.Step, in *catalog.InputSpec, e expr.Expression) error {
	switch v := e.(type) {
	case *expr.Literal:
		if !typesys.Compatible(v.Value.Type(), in.Type) {
			return &pipeline.InvalidLiteralError{Step: step.Name, Input: in.Name, Declared: in.Type, Got: v.Value.Type()}
		}
		return nil

	case *expr.Ref:
		refType, source, err := referenceType(g, step.Name, v.Reference)
		if err != nil {
			return err
		}
		if !typesys.Compatible(refType, in.Type) {
			return &pipeline.TypeMismatchError{
				ProducerStep: v.Reference.Name,
				OutputParam:  source,
				ProducerType: refType,
				ConsumerStep: step.Name,
				InputParam:   in.Name,
				ConsumerType: in.Type,
			}
		}
		return nil

	case *expr.Template:
		for _, part := range v.Parts {
			ref, ok := part.(*expr.Ref)
			if !ok {
				continue
			}
			refType, source, err := referenceType(g, step.Name, ref.Reference)
			if err != nil {
				return err
			}
			if !typesys.StringableType(refType) {
				return &pipeline.TypeMismatchError{
					ProducerStep: ref.Reference.Name,
					OutputParam:  source,
					ProducerType: refType,
					ConsumerStep: step.Name,
					InputParam:   in.Name,
					ConsumerType: cty.String,
				}
			}
		}
		if !typesys.Compatible(cty.String, in.Type) {
			return &pipeline.InvalidLiteralError{Step: step.Name, Input: in.Name, Declared: in.Type, Got: cty.String}
		}
		return nil

	default:
		got, err := staticType(g, step.Name, e)
		if err != nil {
			return err
		}
		if !typesys.Compatible(got, in.Type) {
			return &pipeline.InvalidLiteralError{Step: step.Name, Input: in.Name, Declared: in.Type, Got: got}
		}
		return nil
	}
}

// staticType computes the best statically-known type of an expression.
// References to `any`-typed outputs surface as DynamicPseudoType, deferring
// the check to the plugin's own contract.
func staticType(g *graph.Graph, consumer string, e expr.Expression) (cty.Type, error) {
	switch v := e.(type) {
	case *expr.Literal:
		return v.Value.Type(), nil
	case *expr.Ref:
		ty, _, err := referenceType(g, consumer, v.Reference)
		return ty, err
	case *expr.Template:
		return cty.String, nil
	case *expr.List:
		elems := make([]cty.Type, 0, len(v.Elems))
		for _, elem := range v.Elems {
			ty, err := staticType(g, consumer, elem)
			if err != nil {
				return cty.NilType, err
			}
			elems = append(elems, ty)
		}
		return cty.Tuple(elems), nil
	case *expr.Mapping:
		attrs := make(map[string]cty.Type, len(v.Entries))
		for name, entry := range v.Entries {
			ty, err := staticType(g, consumer, entry)
			if err != nil {
				return cty.NilType, err
			}
			attrs[name] = ty
		}
		return cty.Object(attrs), nil
	default:
		return cty.DynamicPseudoType, nil
	}
}

// referenceType resolves the declared type a reference denotes, along with
// a human-readable source label (the dotted output path, or the parameter
// name) for error messages.
func referenceType(g *graph.Graph, consumer string, ref expr.Reference) (cty.Type, string, error) {
	if producer, ok := g.Pipeline.Step(ref.Name); ok {
		ty, err := outputPathType(consumer, producer, ref.Path)
		if err != nil {
			return cty.NilType, "", err
		}
		source := strings.Join(ref.Path, ".")
		if source == "" {
			if out, ok := producer.Signature.SingleOutput(); ok {
				source = out.Name
			}
		}
		return ty, source, nil
	}

	param, _ := g.Pipeline.Param(ref.Name)
	ty := param.Type
	for i, seg := range ref.Path {
		if ty.Equals(cty.DynamicPseudoType) {
			return cty.DynamicPseudoType, ref.Name, nil
		}
		if !ty.IsObjectType() || !ty.HasAttribute(seg) {
			return cty.NilType, "", &pipeline.UnknownOutputFieldError{
				Step:     consumer,
				Producer: ref.Name,
				Path:     ref.Path[:i+1],
			}
		}
		ty = ty.AttributeType(seg)
	}
	return ty, ref.Name, nil
}

// outputPathType walks a dotted output path against a producer's declared
// outputs. An empty path addresses the producer's sole output and is an
// error when the plugin declares zero or several.
func outputPathType(consumer string, producer *pipeline.Step, path []string) (cty.Type, error) {
	sig := producer.Signature

	if len(path) == 0 {
		out, ok := sig.SingleOutput()
		if !ok {
			return cty.NilType, &pipeline.UnknownOutputFieldError{
				Step:     consumer,
				Producer: producer.Name,
				Reason:   "whole-step references require exactly one declared output",
			}
		}
		return out.Type, nil
	}

	out, ok := sig.Output(path[0])
	if !ok {
		return cty.NilType, &pipeline.UnknownOutputFieldError{
			Step:     consumer,
			Producer: producer.Name,
			Path:     path[:1],
		}
	}

	ty := out.Type
	for i, seg := range path[1:] {
		if ty.Equals(cty.DynamicPseudoType) {
			return cty.DynamicPseudoType, nil
		}
		if !ty.IsObjectType() || !ty.HasAttribute(seg) {
			return cty.NilType, &pipeline.UnknownOutputFieldError{
				Step:     consumer,
				Producer: producer.Name,
				Path:     path[:i+2],
			}
		}
		ty = ty.AttributeType(seg)
	}
	return ty, nil
}
