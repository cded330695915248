package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

func adderSignature(t *testing.T) (*catalog.Registry, *catalog.Signature) {
	t.Helper()
	r := catalog.NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(`
plugin "adder" {
  input "a" { type = number }
  input "b" { type = number }
  output "sum" { type = number }
}
`), "adder.hcl"))
	sig, ok := r.Lookup("adder")
	require.True(t, ok)
	return r, sig
}

type adderInput struct {
	A float64 `cty:"a"`
	B float64 `cty:"b"`
}

type adderOutput struct {
	Sum float64 `cty:"sum"`
}

func TestInvoke_DecodesArgsAndEncodesOutputs(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	_, sig := adderSignature(t)
	h := &catalog.Handler{
		NewInput: func() any { return new(adderInput) },
		Fn: func(ctx context.Context, in *adderInput) (*adderOutput, error) {
			return &adderOutput{Sum: in.A + in.B}, nil
		},
	}
	args := map[string]cty.Value{
		"a": cty.NumberFloatVal(2),
		"b": cty.NumberFloatVal(3),
	}

	// --- Act ---
	outputs, err := invoke(context.Background(), h, sig, args)

	// --- Assert ---
	require.NoError(t, err)
	require.True(t, outputs["sum"].RawEquals(cty.NumberFloatVal(5)))
}

func TestInvoke_HandlerErrorPropagates(t *testing.T) {
	t.Parallel()

	_, sig := adderSignature(t)
	boom := errors.New("numerical instability")
	h := &catalog.Handler{
		NewInput: func() any { return new(adderInput) },
		Fn: func(ctx context.Context, in *adderInput) (*adderOutput, error) {
			return nil, boom
		},
	}

	_, err := invoke(context.Background(), h, sig, map[string]cty.Value{
		"a": cty.NumberFloatVal(1),
		"b": cty.NumberFloatVal(1),
	})
	require.ErrorIs(t, err, boom)
}

func TestInvoke_PanicBecomesError(t *testing.T) {
	t.Parallel()

	_, sig := adderSignature(t)
	h := &catalog.Handler{
		NewInput: func() any { return new(adderInput) },
		Fn: func(ctx context.Context, in *adderInput) (*adderOutput, error) {
			panic("index out of range")
		},
	}

	_, err := invoke(context.Background(), h, sig, map[string]cty.Value{
		"a": cty.NumberFloatVal(1),
		"b": cty.NumberFloatVal(1),
	})
	require.ErrorContains(t, err, "panic: index out of range")
}

func TestInvoke_NilOutputWithDeclaredOutputsFails(t *testing.T) {
	t.Parallel()

	_, sig := adderSignature(t)
	h := &catalog.Handler{
		NewInput: func() any { return new(adderInput) },
		Fn: func(ctx context.Context, in *adderInput) (*adderOutput, error) {
			return nil, nil
		},
	}

	_, err := invoke(context.Background(), h, sig, map[string]cty.Value{
		"a": cty.NumberFloatVal(1),
		"b": cty.NumberFloatVal(1),
	})
	require.ErrorContains(t, err, "returned no output")
}

func TestInvoke_NoInputHandler(t *testing.T) {
	t.Parallel()

	r := catalog.NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(`
plugin "clock" {
  output "now" { type = string }
}
`), "clock.hcl"))
	sig, _ := r.Lookup("clock")

	type clockOutput struct {
		Now string `cty:"now"`
	}
	h := &catalog.Handler{
		Fn: func(ctx context.Context, _ any) (*clockOutput, error) {
			return &clockOutput{Now: "2026-01-01T00:00:00Z"}, nil
		},
	}

	outputs, err := invoke(context.Background(), h, sig, nil)
	require.NoError(t, err)
	require.Equal(t, cty.StringVal("2026-01-01T00:00:00Z"), outputs["now"])
}
