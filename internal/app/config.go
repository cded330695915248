package app

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath  string // yaml pipeline document
	ManifestsPath string // optional directory of extra .hcl plugin manifests

	// Params are entrypoint parameter overrides from the command line, as
	// raw strings. They are converted to the declared parameter types at
	// submission.
	Params map[string]string

	LogFormat   string
	LogLevel    string
	Workers     int
	StepTimeout time.Duration

	// Store selects the run-state backend: "memory" or "redis".
	Store     string
	RedisAddr string

	// Queue selects the work-queue backend: "memory" or "nats".
	Queue   string
	NatsURL string
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}

	switch cfg.Store {
	case "", "memory":
		cfg.Store = "memory"
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis store selected but no redis address configured")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}

	switch cfg.Queue {
	case "", "memory":
		cfg.Queue = "memory"
	case "nats":
		if cfg.NatsURL == "" {
			return nil, errors.New("nats queue selected but no nats url configured")
		}
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue)
	}

	return &cfg, nil
}
