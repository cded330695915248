// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates CLI flags into the application's internal configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/specialistvlad/mlgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// setFlags collects repeated -set name=value parameter overrides.
type setFlags map[string]string

func (s setFlags) String() string {
	pairs := make([]string, 0, len(s))
	for name, value := range s {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (s setFlags) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	s[name] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("mlgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
MLGridGo - A declarative, concurrency-first ML experiment workflow engine.

Usage:
  mlgridgo [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a pipeline .yaml file.

Options:
`)
		flagSet.PrintDefaults()
	}

	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file.")
	pFlag := flagSet.String("p", "", "Path to the pipeline file (shorthand).")
	manifestsFlag := flagSet.String("manifests", "", "Path to a directory of extra plugin manifests.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the executor.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 10*time.Minute, "Execution timeout per step.")
	storeFlag := flagSet.String("store", "memory", "Run-state backend. Options: 'memory' or 'redis'.")
	redisAddrFlag := flagSet.String("redis-addr", "", "Redis address for the redis store backend.")
	queueFlag := flagSet.String("queue", "memory", "Work-queue backend. Options: 'memory' or 'nats'.")
	natsURLFlag := flagSet.String("nats-url", "", "NATS server URL for the nats queue backend.")
	params := setFlags{}
	flagSet.Var(params, "set", "Override an entrypoint parameter as name=value. Repeatable.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *pipelineFlag != "" {
		path = *pipelineFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", path)

	if path == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PipelinePath:  path,
		ManifestsPath: *manifestsFlag,
		Params:        params,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		Workers:       *workersFlag,
		StepTimeout:   *stepTimeoutFlag,
		Store:         *storeFlag,
		RedisAddr:     *redisAddrFlag,
		Queue:         *queueFlag,
		NatsURL:       *natsURLFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
