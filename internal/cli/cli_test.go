package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_PositionalPipelinePath(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"pipeline.yaml"}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, "pipeline.yaml", cfg.PipelinePath)
	require.Equal(t, "memory", cfg.Store)
	require.Equal(t, "memory", cfg.Queue)
}

func TestParse_FlagsAndOverrides(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, exit, err := Parse([]string{
		"-pipeline", "exp.yaml",
		"-workers", "8",
		"-step-timeout", "90s",
		"-log-format", "text",
		"-log-level", "debug",
		"-set", "epochs=20",
		"-set", "run_name=exp7",
	}, &out)

	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, "exp.yaml", cfg.PipelinePath)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 90*time.Second, cfg.StepTimeout)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, map[string]string{"epochs": "20", "run_name": "exp7"}, cfg.Params)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)

	require.NoError(t, err)
	require.True(t, exit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, _, err := Parse([]string{"-log-level", "loud", "pipeline.yaml"}, &out)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_MalformedSetFlag(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, _, err := Parse([]string{"-set", "no-equals-sign", "pipeline.yaml"}, &out)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
}

func TestParse_BackendValidation(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, _, err := Parse([]string{"-store", "redis", "pipeline.yaml"}, &out)
	require.Error(t, err, "redis store without an address must fail")

	cfg, _, err := Parse([]string{"-store", "redis", "-redis-addr", "localhost:6379", "pipeline.yaml"}, &out)
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)

	_, _, err = Parse([]string{"-queue", "nats", "pipeline.yaml"}, &out)
	require.Error(t, err, "nats queue without a url must fail")
}
