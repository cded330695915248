// This file parses pipeline documents. A document is YAML:
//
//	name: churn-experiment
//	params:
//	  epochs: { type: number, default: 10 }
//	steps:
//	  load:
//	    plugin: dataset_load
//	    inputs: { uri: "s3://bucket/churn.csv" }
//	  train:
//	    plugin: trainer
//	    inputs: { data: $load.items, epochs: $epochs }
//
// The steps mapping is ordered; parsing uses the yaml.Node API so the order
// survives into the model. References inside input strings are scanned once
// here and never re-parsed during execution.

package pipeline

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
	"github.com/specialistvlad/mlgridgo/internal/expr"
	"github.com/specialistvlad/mlgridgo/internal/typesys"
)

// paramDecl is the YAML shape of one entrypoint parameter declaration.
type paramDecl struct {
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
}

// stepDecl is the YAML shape of one step entry.
type stepDecl struct {
	Plugin string         `yaml:"plugin"`
	Inputs map[string]any `yaml:"inputs"`
}

// Parse converts a pipeline document into a Pipeline, binding every step to
// its plugin signature in the catalog. It fails with UnknownPluginError when
// a plugin reference cannot be resolved. It performs no dependency or type
// validation; that happens in internal/graph and internal/validate.
func Parse(ctx context.Context, src []byte, cat catalog.Catalog, types *typesys.Registry) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, fmt.Errorf("parsing pipeline document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("pipeline document must be a mapping")
	}
	doc := root.Content[0]

	p := &Pipeline{}
	var stepsNode *yaml.Node

	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valNode := doc.Content[i], doc.Content[i+1]
		switch keyNode.Value {
		case "name":
			p.Name = valNode.Value
		case "params":
			params, err := parseParams(valNode, types)
			if err != nil {
				return nil, err
			}
			p.Params = params
		case "steps":
			stepsNode = valNode
		default:
			return nil, fmt.Errorf("unknown top-level key %q at line %d", keyNode.Value, keyNode.Line)
		}
	}

	if stepsNode == nil {
		return nil, fmt.Errorf("pipeline document has no steps")
	}
	if stepsNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("steps must be a mapping of step name to step definition")
	}

	p.buildIndexes()
	seen := make(map[string]struct{})
	for i := 0; i+1 < len(stepsNode.Content); i += 2 {
		nameNode, defNode := stepsNode.Content[i], stepsNode.Content[i+1]
		name := nameNode.Value

		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate step name %q at line %d", name, nameNode.Line)
		}
		seen[name] = struct{}{}
		if _, collides := p.Param(name); collides {
			return nil, fmt.Errorf("step name %q collides with a parameter of the same name", name)
		}

		step, err := parseStep(name, defNode, cat)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, step)
	}

	p.buildIndexes()
	logger.Debug("Pipeline parsed.", "name", p.Name, "steps", len(p.Steps), "params", len(p.Params))
	return p, nil
}

// parseParams translates the params mapping into Param declarations.
func parseParams(node *yaml.Node, types *typesys.Registry) ([]*Param, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("params must be a mapping of parameter name to declaration")
	}
	var params []*Param
	for i := 0; i+1 < len(node.Content); i += 2 {
		nameNode, declNode := node.Content[i], node.Content[i+1]

		var decl paramDecl
		if err := declNode.Decode(&decl); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", nameNode.Value, err)
		}
		if decl.Type == "" {
			return nil, fmt.Errorf("parameter %q: missing type", nameNode.Value)
		}
		ty, err := types.ParseTypeString(decl.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", nameNode.Value, err)
		}

		param := &Param{Name: nameNode.Value, Type: ty, Default: cty.NilVal}
		if decl.Default != nil {
			def, err := expr.FromGoValue(decl.Default)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: default: %w", nameNode.Value, err)
			}
			if !typesys.Compatible(def.Type(), ty) {
				return nil, fmt.Errorf("parameter %q: default of type %s does not satisfy declared type %s",
					nameNode.Value, def.Type().FriendlyName(), ty.FriendlyName())
			}
			param.Default = def
		}
		params = append(params, param)
	}
	return params, nil
}

// parseStep translates one step entry, binding it to its catalog signature.
func parseStep(name string, node *yaml.Node, cat catalog.Catalog) (*Step, error) {
	var decl stepDecl
	if err := node.Decode(&decl); err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}
	if decl.Plugin == "" {
		return nil, fmt.Errorf("step %q: missing plugin reference", name)
	}

	sig, ok := cat.Lookup(decl.Plugin)
	if !ok {
		return nil, &UnknownPluginError{Step: name, Plugin: decl.Plugin}
	}

	step := &Step{
		Name:      name,
		Plugin:    decl.Plugin,
		Signature: sig,
		Inputs:    make(map[string]expr.Expression, len(decl.Inputs)),
	}
	for inputName, raw := range decl.Inputs {
		e, err := expr.ParseGoValue(raw)
		if err != nil {
			return nil, fmt.Errorf("step %q, input %q: %w", name, inputName, err)
		}
		step.Inputs[inputName] = e
	}
	return step, nil
}
