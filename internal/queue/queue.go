// Package queue defines the work queue between the dispatcher and the
// worker pool. Delivery is at-least-once; consumers tolerate duplicates by
// checking run state before executing. Work items carry fully resolved
// argument values, so workers never touch the pipeline document or the
// dependency graph.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// WorkItem is one dispatched step execution.
type WorkItem struct {
	JobID   string
	Step    string
	Plugin  string
	Args    map[string]cty.Value
	Timeout time.Duration
}

// Queue decouples step dispatch from step execution.
type Queue interface {
	// Enqueue publishes one work item. A transport failure is reported as
	// QueueUnavailableError so callers can retry.
	Enqueue(ctx context.Context, item *WorkItem) error

	// Dequeue blocks until a work item is available or ctx is done.
	Dequeue(ctx context.Context) (*WorkItem, error)
}

// QueueUnavailableError wraps a transport failure during enqueue.
type QueueUnavailableError struct {
	Err error
}

func (e *QueueUnavailableError) Error() string {
	return fmt.Sprintf("work queue unavailable: %v", e.Err)
}

func (e *QueueUnavailableError) Unwrap() error {
	return e.Err
}

// wireItem is the JSON envelope for durable transports. Argument values are
// dynamically encoded so their cty types survive the round trip.
type wireItem struct {
	JobID     string                     `json:"job_id"`
	Step      string                     `json:"step"`
	Plugin    string                     `json:"plugin"`
	Args      map[string]json.RawMessage `json:"args,omitempty"`
	TimeoutMS int64                      `json:"timeout_ms,omitempty"`
}

// EncodeItem serializes a work item for a durable transport.
func EncodeItem(item *WorkItem) ([]byte, error) {
	w := wireItem{
		JobID:     item.JobID,
		Step:      item.Step,
		Plugin:    item.Plugin,
		TimeoutMS: item.Timeout.Milliseconds(),
	}
	if item.Args != nil {
		w.Args = make(map[string]json.RawMessage, len(item.Args))
		for name, v := range item.Args {
			buf, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
			if err != nil {
				return nil, fmt.Errorf("encoding argument %q: %w", name, err)
			}
			w.Args[name] = buf
		}
	}
	return json.Marshal(w)
}

// DecodeItem is the inverse of EncodeItem.
func DecodeItem(data []byte) (*WorkItem, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	item := &WorkItem{
		JobID:   w.JobID,
		Step:    w.Step,
		Plugin:  w.Plugin,
		Timeout: time.Duration(w.TimeoutMS) * time.Millisecond,
	}
	if w.Args != nil {
		item.Args = make(map[string]cty.Value, len(w.Args))
		for name, buf := range w.Args {
			v, err := ctyjson.Unmarshal(buf, cty.DynamicPseudoType)
			if err != nil {
				return nil, fmt.Errorf("decoding argument %q: %w", name, err)
			}
			item.Args[name] = v
		}
	}
	return item, nil
}
