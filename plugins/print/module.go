// Package print implements the print plugin: a sink step that logs its
// message. It declares no outputs, so it always terminates a branch of the
// graph.
package print

import (
	"context"
	_ "embed"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/ctxlog"
)

//go:embed manifest.hcl
var manifest []byte

// Input holds the message and an optional prefix.
type Input struct {
	Message string `cty:"message"`
	Prefix  string `cty:"prefix"`
}

func handle(ctx context.Context, in *Input) (any, error) {
	ctxlog.FromContext(ctx).Info(in.Prefix + in.Message)
	return nil, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/print/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("print", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
