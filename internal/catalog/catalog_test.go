package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const trainerManifest = `
type "metrics" {
  schema = object({ accuracy = number, loss = number })
}

plugin "trainer" {
  description = "Fits a model on the training split."

  input "data" {
    type = list(any)
  }

  input "epochs" {
    type    = number
    default = 10
  }

  input "tag" {
    type     = string
    optional = true
  }

  output "model_uri" {
    type = string
  }

  output "metrics" {
    type = metrics
  }
}
`

func TestLoadManifest_TranslatesSignature(t *testing.T) {
	t.Parallel()

	// --- Arrange / Act ---
	r := NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(trainerManifest), "trainer.hcl"))

	// --- Assert ---
	sig, ok := r.Lookup("trainer")
	require.True(t, ok)
	require.Equal(t, "trainer", sig.ID)
	require.Len(t, sig.Inputs, 3)
	require.Len(t, sig.Outputs, 2)

	data, ok := sig.Input("data")
	require.True(t, ok)
	require.True(t, data.Required)
	require.True(t, cty.List(cty.DynamicPseudoType).Equals(data.Type))

	epochs, ok := sig.Input("epochs")
	require.True(t, ok)
	require.False(t, epochs.Required, "an input with a default is optional")
	require.True(t, epochs.Default.RawEquals(cty.NumberIntVal(10)))

	tag, ok := sig.Input("tag")
	require.True(t, ok)
	require.False(t, tag.Required)
	require.Equal(t, cty.NilVal, tag.Default)

	metrics, ok := sig.Output("metrics")
	require.True(t, ok)
	require.True(t, metrics.Type.IsObjectType(), "composite type reference resolves through the registry")
}

func TestLoadManifest_RejectsDuplicatePluginID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	src := `plugin "echo" {
  output "value" { type = any }
}`
	require.NoError(t, r.LoadManifest([]byte(src), "a.hcl"))
	require.Error(t, r.LoadManifest([]byte(src), "b.hcl"))
}

func TestLoadManifest_RejectsIncompatibleDefault(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	src := `
plugin "bad" {
  input "epochs" {
    type    = number
    default = "ten"
  }
}
`
	require.Error(t, r.LoadManifest([]byte(src), "bad.hcl"))
}

func TestSignature_SingleOutput(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(trainerManifest), "trainer.hcl"))
	sig, _ := r.Lookup("trainer")

	_, ok := sig.SingleOutput()
	require.False(t, ok, "two declared outputs have no single output")

	require.NoError(t, r.LoadManifest([]byte(`plugin "echo" {
  output "value" { type = any }
}`), "echo.hcl"))
	echo, _ := r.Lookup("echo")
	out, ok := echo.SingleOutput()
	require.True(t, ok)
	require.Equal(t, "value", out.Name)
}

func TestValidate_ParityMismatchFails(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := NewRegistry()
	src := `
plugin "adder" {
  input "a" { type = number }
  input "b" { type = number }
  output "sum" { type = number }
}
`
	require.NoError(t, r.LoadManifest([]byte(src), "adder.hcl"))

	// The Go struct is missing input "b" and declares an undeclared "c".
	type input struct {
		A float64 `cty:"a"`
		C float64 `cty:"c"`
	}
	type output struct {
		Sum float64 `cty:"sum"`
	}
	require.NoError(t, r.RegisterHandler("adder", &Handler{
		NewInput: func() any { return new(input) },
		Fn: func(ctx context.Context, in *input) (*output, error) {
			return &output{Sum: in.A}, nil
		},
	}))

	// --- Act ---
	err := r.Validate(context.Background())

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "manifest declares input 'b' which is not found in Go struct")
	require.Contains(t, err.Error(), "Go struct has field for input 'c' which is not declared in manifest")
}

func TestValidate_MatchingContractPasses(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	src := `
plugin "adder" {
  input "a" { type = number }
  input "b" { type = number }
  output "sum" { type = number }
}
`
	require.NoError(t, r.LoadManifest([]byte(src), "adder.hcl"))

	type input struct {
		A float64 `cty:"a"`
		B float64 `cty:"b"`
	}
	type output struct {
		Sum float64 `cty:"sum"`
	}
	require.NoError(t, r.RegisterHandler("adder", &Handler{
		NewInput: func() any { return new(input) },
		Fn: func(ctx context.Context, in *input) (*output, error) {
			return &output{Sum: in.A + in.B}, nil
		},
	}))

	require.NoError(t, r.Validate(context.Background()))
}

func TestValidate_SignatureOnlyRegistrationIsLegal(t *testing.T) {
	t.Parallel()

	// Signatures without handlers describe plugins served by other worker
	// binaries; they must not fail validation.
	r := NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(trainerManifest), "trainer.hcl"))
	require.NoError(t, r.Validate(context.Background()))
}
