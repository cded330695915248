// Package mlflow_log implements the mlflow_log plugin: it creates a
// tracking run, logs the supplied parameters and metrics in one batch, and
// marks the run finished.
package mlflow_log

import (
	"context"
	_ "embed"
	"time"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/internal/tracking"
)

//go:embed manifest.hcl
var manifest []byte

// Input configures one tracking run.
type Input struct {
	TrackingURI  string             `cty:"tracking_uri"`
	ExperimentID string             `cty:"experiment_id"`
	RunName      *string            `cty:"run_name"`
	Params       map[string]string  `cty:"params"`
	Metrics      map[string]float64 `cty:"metrics"`
}

// Output identifies the created run.
type Output struct {
	RunID string `cty:"run_id"`
}

func handle(ctx context.Context, in *Input) (*Output, error) {
	client := tracking.NewClient(in.TrackingURI)
	defer client.Close()

	runName := ""
	if in.RunName != nil {
		runName = *in.RunName
	}
	runID, err := client.CreateRun(ctx, in.ExperimentID, runName)
	if err != nil {
		return nil, err
	}

	params := make([]tracking.Param, 0, len(in.Params))
	for key, value := range in.Params {
		params = append(params, tracking.Param{Key: key, Value: value})
	}
	now := time.Now().UnixMilli()
	metrics := make([]tracking.Metric, 0, len(in.Metrics))
	for key, value := range in.Metrics {
		metrics = append(metrics, tracking.Metric{Key: key, Value: value, Timestamp: now})
	}
	if len(params) > 0 || len(metrics) > 0 {
		if err := client.LogBatch(ctx, runID, params, metrics); err != nil {
			return nil, err
		}
	}

	if err := client.SetTerminated(ctx, runID, "FINISHED"); err != nil {
		return nil, err
	}
	return &Output{RunID: runID}, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/mlflow_log/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("mlflow_log", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
