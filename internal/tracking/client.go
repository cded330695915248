// Package tracking implements a minimal MLflow REST client used by the
// mlflow_log plugin to record parameters and metrics against a tracking
// server. Only the three endpoints the plugin needs are covered.
package tracking

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"
)

const apiPrefix = "/api/2.0/mlflow"

// Client talks to one MLflow tracking server.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the tracking server at baseURL.
func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Client{http: c}
}

// Close releases the underlying HTTP resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// Param is one logged run parameter.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metric is one logged metric observation.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type createRunRequest struct {
	ExperimentID string `json:"experiment_id"`
	RunName      string `json:"run_name,omitempty"`
	StartTime    int64  `json:"start_time"`
}

type createRunResponse struct {
	Run struct {
		Info struct {
			RunID string `json:"run_id"`
		} `json:"info"`
	} `json:"run"`
}

// CreateRun starts a new tracking run and returns its id.
func (c *Client) CreateRun(ctx context.Context, experimentID, runName string) (string, error) {
	var out createRunResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createRunRequest{
			ExperimentID: experimentID,
			RunName:      runName,
			StartTime:    time.Now().UnixMilli(),
		}).
		SetResult(&out).
		Post(apiPrefix + "/runs/create")
	if err != nil {
		return "", fmt.Errorf("creating tracking run: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("creating tracking run: server returned %s: %s", resp.Status(), resp.String())
	}
	return out.Run.Info.RunID, nil
}

type logBatchRequest struct {
	RunID   string   `json:"run_id"`
	Params  []Param  `json:"params,omitempty"`
	Metrics []Metric `json:"metrics,omitempty"`
}

// LogBatch records parameters and metrics against a run in one call.
func (c *Client) LogBatch(ctx context.Context, runID string, params []Param, metrics []Metric) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(logBatchRequest{RunID: runID, Params: params, Metrics: metrics}).
		Post(apiPrefix + "/runs/log-batch")
	if err != nil {
		return fmt.Errorf("logging batch: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("logging batch: server returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}

type setTerminatedRequest struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	EndTime int64  `json:"end_time"`
}

// SetTerminated marks a run finished. Status is "FINISHED" or "FAILED".
func (c *Client) SetTerminated(ctx context.Context, runID, status string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(setTerminatedRequest{
			RunID:   runID,
			Status:  status,
			EndTime: time.Now().UnixMilli(),
		}).
		Post(apiPrefix + "/runs/update")
	if err != nil {
		return fmt.Errorf("terminating tracking run: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("terminating tracking run: server returned %s: %s", resp.Status(), resp.String())
	}
	return nil
}
