// This file loads plugin manifests: HCL documents declaring plugin
// signatures and user-defined composite types.
//
//	type "metrics" {
//	  schema = object({ accuracy = number, loss = number })
//	}
//
//	plugin "train" {
//	  description = "Fits a model on the training split."
//	  input "data"   { type = list(any) }
//	  input "epochs" { type = number  default = 10 }
//	  output "model_uri" { type = string }
//	  output "metrics"   { type = metrics }
//	}

package catalog

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/typesys"
)

// manifestFile is the top-level gohcl schema of one manifest document.
type manifestFile struct {
	Types   []*typeBlock   `hcl:"type,block"`
	Plugins []*pluginBlock `hcl:"plugin,block"`
}

type typeBlock struct {
	Name   string         `hcl:"name,label"`
	Schema hcl.Expression `hcl:"schema"`
}

type pluginBlock struct {
	ID          string         `hcl:"id,label"`
	Description string         `hcl:"description,optional"`
	Inputs      []*inputBlock  `hcl:"input,block"`
	Outputs     []*outputBlock `hcl:"output,block"`
}

type inputBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Optional    bool           `hcl:"optional,optional"`
	Default     *cty.Value     `hcl:"default,optional"`
}

type outputBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
}

// LoadManifest parses one manifest document and registers its composite
// types and plugin signatures. Type blocks are applied before plugin blocks
// so a manifest can declare and use a composite in the same file.
func (r *Registry) LoadManifest(src []byte, filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("parsing manifest %s: %s", filename, diags.Error())
	}

	var mf manifestFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mf); diags.HasErrors() {
		return fmt.Errorf("decoding manifest %s: %s", filename, diags.Error())
	}

	for _, tb := range mf.Types {
		ty, err := r.types.ParseTypeExpr(tb.Schema)
		if err != nil {
			return fmt.Errorf("manifest %s, type %q: %w", filename, tb.Name, err)
		}
		if err := r.types.RegisterComposite(tb.Name, ty); err != nil {
			return fmt.Errorf("manifest %s: %w", filename, err)
		}
	}

	for _, pb := range mf.Plugins {
		sig, err := r.translatePlugin(pb)
		if err != nil {
			return fmt.Errorf("manifest %s, plugin %q: %w", filename, pb.ID, err)
		}
		if err := r.RegisterSignature(sig); err != nil {
			return fmt.Errorf("manifest %s: %w", filename, err)
		}
	}
	return nil
}

// translatePlugin converts a decoded plugin block into an immutable
// Signature, resolving every type expression against the type registry.
func (r *Registry) translatePlugin(pb *pluginBlock) (*Signature, error) {
	sig := &Signature{
		ID:          pb.ID,
		Description: pb.Description,
	}

	seen := make(map[string]struct{})
	for _, ib := range pb.Inputs {
		if _, dup := seen[ib.Name]; dup {
			return nil, fmt.Errorf("duplicate input %q", ib.Name)
		}
		seen[ib.Name] = struct{}{}

		ty, err := r.types.ParseTypeExpr(ib.Type)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", ib.Name, err)
		}

		in := &InputSpec{
			Name:        ib.Name,
			Type:        ty,
			Description: ib.Description,
			Required:    !ib.Optional && ib.Default == nil,
			Default:     cty.NilVal,
		}
		if ib.Default != nil {
			def := *ib.Default
			if !typesys.Compatible(def.Type(), ty) {
				return nil, fmt.Errorf("input %q: default of type %s does not satisfy declared type %s",
					ib.Name, def.Type().FriendlyName(), ty.FriendlyName())
			}
			in.Default = def
		}
		sig.Inputs = append(sig.Inputs, in)
	}

	seen = make(map[string]struct{})
	for _, ob := range pb.Outputs {
		if _, dup := seen[ob.Name]; dup {
			return nil, fmt.Errorf("duplicate output %q", ob.Name)
		}
		seen[ob.Name] = struct{}{}

		ty, err := r.types.ParseTypeExpr(ob.Type)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", ob.Name, err)
		}
		sig.Outputs = append(sig.Outputs, &OutputSpec{
			Name:        ob.Name,
			Type:        ty,
			Description: ob.Description,
		})
	}

	return sig, nil
}
