package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(&out, nil)

	require.NoError(t, err)
	require.Contains(t, out.String(), "Usage:")
}

func TestRun_ExecutesPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	doc := `
name: smoke
params:
  greeting: { type: string, default: "hello" }
steps:
  value:
    plugin: constant
    inputs: { value: $greeting }
  announce:
    plugin: print
    inputs: { message: "saying $value" }
`
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	// --- Act ---
	var out bytes.Buffer
	err := run(&out, []string{"-log-format", "text", "-set", "greeting=hi", path})

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "saying hi")
}

func TestRun_FailsOnTypeError(t *testing.T) {
	t.Parallel()

	doc := `
steps:
  announce:
    plugin: print
    inputs: { message: 42 }
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	var out bytes.Buffer
	err := run(&out, []string{path})
	require.ErrorContains(t, err, "not compatible with declared type")
}
