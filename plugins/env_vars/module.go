// Package env_vars implements the env_vars plugin, which exposes worker
// process environment variables to the pipeline. With no names configured
// it returns the whole environment.
package env_vars

import (
	"context"
	_ "embed"
	"os"
	"strings"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

//go:embed manifest.hcl
var manifest []byte

// Input optionally narrows the returned variables.
type Input struct {
	Names []string `cty:"names"`
}

// Output is the resolved environment subset.
type Output struct {
	Values map[string]string `cty:"values"`
}

func handle(ctx context.Context, in *Input) (*Output, error) {
	values := make(map[string]string)
	if len(in.Names) == 0 {
		for _, kv := range os.Environ() {
			if name, value, ok := strings.Cut(kv, "="); ok {
				values[name] = value
			}
		}
		return &Output{Values: values}, nil
	}

	for _, name := range in.Names {
		if value, ok := os.LookupEnv(name); ok {
			values[name] = value
		}
	}
	return &Output{Values: values}, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/env_vars/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("env_vars", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
