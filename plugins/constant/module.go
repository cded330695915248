// Package constant implements the constant plugin: a source step that emits
// a fixed value, useful for naming shared configuration once and fanning it
// out to several consumers.
package constant

import (
	"context"
	_ "embed"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

//go:embed manifest.hcl
var manifest []byte

// Input carries the configured value with its original type.
type Input struct {
	Value cty.Value `cty:"value"`
}

// Output echoes the input.
type Output struct {
	Value cty.Value `cty:"value"`
}

func handle(ctx context.Context, in *Input) (*Output, error) {
	return &Output{Value: in.Value}, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/constant/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("constant", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
