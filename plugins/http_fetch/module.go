// Package http_fetch implements the http_fetch plugin, used by pipelines to
// pull datasets or manifests from HTTP endpoints. Non-2xx responses are
// returned as values, not errors, so pipelines can branch on the status.
package http_fetch

import (
	"context"
	_ "embed"
	"fmt"

	"resty.dev/v3"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

//go:embed manifest.hcl
var manifest []byte

// Input configures one request.
type Input struct {
	URL     string            `cty:"url"`
	Headers map[string]string `cty:"headers"`
}

// Output carries the response.
type Output struct {
	Status int64  `cty:"status"`
	Body   string `cty:"body"`
}

// client is shared across invocations; per-call deadlines come from the
// execution context.
var client = resty.New()

func handle(ctx context.Context, in *Input) (*Output, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(in.Headers).
		Get(in.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", in.URL, err)
	}
	return &Output{
		Status: int64(resp.StatusCode()),
		Body:   resp.String(),
	}, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/http_fetch/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("http_fetch", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
