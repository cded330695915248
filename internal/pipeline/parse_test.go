package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/expr"
)

func testCatalog(t *testing.T) *catalog.Registry {
	t.Helper()
	r := catalog.NewRegistry()
	require.NoError(t, r.LoadManifest([]byte(`
plugin "dataset_load" {
  input "uri" { type = string }
  output "items" { type = list(any) }
}

plugin "trainer" {
  input "data" { type = list(any) }
  input "epochs" {
    type    = number
    default = 10
  }
  output "model_uri" { type = string }
}
`), "test.hcl"))
	return r
}

func TestParse_BindsStepsInDocumentOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	cat := testCatalog(t)
	doc := `
name: churn-experiment
params:
  epochs: { type: number, default: 5 }
steps:
  load:
    plugin: dataset_load
    inputs: { uri: "s3://bucket/churn.csv" }
  train:
    plugin: trainer
    inputs: { data: $load.items, epochs: $epochs }
`

	// --- Act ---
	p, err := Parse(context.Background(), []byte(doc), cat, cat.Types())

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, "churn-experiment", p.Name)
	require.Equal(t, []string{"load", "train"}, p.StepNames())

	epochs, ok := p.Param("epochs")
	require.True(t, ok)
	require.True(t, epochs.Type.Equals(cty.Number))
	require.True(t, epochs.Default.RawEquals(cty.NumberIntVal(5)))

	train, ok := p.Step("train")
	require.True(t, ok)
	require.Equal(t, "trainer", train.Plugin)
	require.Equal(t, []expr.Reference{{Name: "load", Path: []string{"items"}}}, train.Inputs["data"].References())
	require.Equal(t, []expr.Reference{{Name: "epochs"}}, train.Inputs["epochs"].References())
}

func TestParse_UnknownPlugin(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	doc := `
steps:
  load:
    plugin: no_such_plugin
`
	_, err := Parse(context.Background(), []byte(doc), cat, cat.Types())

	var unknown *UnknownPluginError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "load", unknown.Step)
	require.Equal(t, "no_such_plugin", unknown.Plugin)
	require.True(t, errors.Is(err, ErrStructural))
}

func TestParse_DuplicateStepName(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	doc := `
steps:
  load:
    plugin: dataset_load
    inputs: { uri: "a" }
  load:
    plugin: dataset_load
    inputs: { uri: "b" }
`
	_, err := Parse(context.Background(), []byte(doc), cat, cat.Types())
	require.Error(t, err)
}

func TestParse_StepParamCollision(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	doc := `
params:
  load: { type: string, default: "x" }
steps:
  load:
    plugin: dataset_load
    inputs: { uri: "a" }
`
	_, err := Parse(context.Background(), []byte(doc), cat, cat.Types())
	require.ErrorContains(t, err, "collides")
}

func TestParse_UnknownTopLevelKey(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	doc := `
stpes:
  load:
    plugin: dataset_load
`
	_, err := Parse(context.Background(), []byte(doc), cat, cat.Types())
	require.ErrorContains(t, err, `unknown top-level key "stpes"`)
}

func TestParse_ParamDefaultTypeMismatch(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	doc := `
params:
  epochs: { type: number, default: "ten" }
steps:
  load:
    plugin: dataset_load
    inputs: { uri: "a" }
`
	_, err := Parse(context.Background(), []byte(doc), cat, cat.Types())
	require.ErrorContains(t, err, "does not satisfy declared type")
}

func TestParse_MissingSteps(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t)
	_, err := Parse(context.Background(), []byte("name: empty"), cat, cat.Types())
	require.ErrorContains(t, err, "no steps")
}
