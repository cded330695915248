// This file provides the Redis-backed Store used when the dispatcher and
// the worker pool run in separate processes. Each job is one hash keyed by
// step name; transitions are compare-and-set via WATCH so the single-writer
// discipline survives redelivery and process races.

package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// redisCASRetries bounds optimistic-lock retries on contended transitions.
// Contention on one step is rare (two writers only ever race on duplicate
// delivery), so a small bound suffices.
const redisCASRetries = 5

// RedisStore is a Store backed by a Redis hash per job.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewRedisStore creates a store on an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: "mlgrid:job:"}
}

// stepRecord is the JSON persisted per step. Output values carry their cty
// type alongside the value (ctyjson dynamic encoding) so they round-trip
// without a schema.
type stepRecord struct {
	State     string                     `json:"state"`
	Error     string                     `json:"error,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Outputs   map[string]json.RawMessage `json:"outputs,omitempty"`
}

func (s *RedisStore) key(jobID string) string {
	return s.keyPrefix + jobID
}

// InitJob implements Store.
func (s *RedisStore) InitJob(ctx context.Context, jobID string, steps []string) error {
	rec, err := encodeRecord(StepStatus{State: Pending, UpdatedAt: time.Now()})
	if err != nil {
		return err
	}
	fields := make(map[string]any, len(steps))
	for _, name := range steps {
		fields[name] = rec
	}
	if err := s.rdb.HSet(ctx, s.key(jobID), fields).Err(); err != nil {
		return fmt.Errorf("initializing job %s: %w", jobID, err)
	}
	return nil
}

// RecordTransition implements Store.
func (s *RedisStore) RecordTransition(ctx context.Context, jobID, step string, t Transition) (bool, error) {
	key := s.key(jobID)
	applied := false

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, step).Result()
		if errors.Is(err, redis.Nil) {
			exists, existsErr := tx.Exists(ctx, key).Result()
			if existsErr != nil {
				return existsErr
			}
			if exists == 0 {
				return &UnknownJobError{JobID: jobID}
			}
			return &IllegalTransitionError{JobID: jobID, Step: step, From: Pending, To: t.To}
		} else if err != nil {
			return err
		}

		current, err := decodeRecord([]byte(raw))
		if err != nil {
			return err
		}
		if current.State.Terminal() {
			return nil // redundant completion: no-op
		}
		if !CanTransition(current.State, t.To) {
			return &IllegalTransitionError{JobID: jobID, Step: step, From: current.State, To: t.To}
		}

		next := StepStatus{State: t.To, Error: t.Error, Outputs: t.Outputs, UpdatedAt: time.Now()}
		buf, err := encodeRecord(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, step, buf)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}

	for i := 0; i < redisCASRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return applied, err
	}
	return false, fmt.Errorf("job %s, step %q: transition contended beyond %d retries", jobID, step, redisCASRetries)
}

// ReadState implements Store.
func (s *RedisStore) ReadState(ctx context.Context, jobID string) (map[string]StepStatus, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &UnknownJobError{JobID: jobID}
	}

	out := make(map[string]StepStatus, len(fields))
	for name, raw := range fields {
		status, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("job %s, step %q: %w", jobID, name, err)
		}
		out[name] = status
	}
	return out, nil
}

func encodeRecord(status StepStatus) (string, error) {
	rec := stepRecord{
		State:     status.State.String(),
		Error:     status.Error,
		UpdatedAt: status.UpdatedAt,
	}
	if status.Outputs != nil {
		rec.Outputs = make(map[string]json.RawMessage, len(status.Outputs))
		for name, v := range status.Outputs {
			buf, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
			if err != nil {
				return "", fmt.Errorf("encoding output %q: %w", name, err)
			}
			rec.Outputs[name] = buf
		}
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeRecord(raw []byte) (StepStatus, error) {
	var rec stepRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StepStatus{}, err
	}
	state, err := ParseState(rec.State)
	if err != nil {
		return StepStatus{}, err
	}
	status := StepStatus{State: state, Error: rec.Error, UpdatedAt: rec.UpdatedAt}
	if rec.Outputs != nil {
		status.Outputs = make(map[string]cty.Value, len(rec.Outputs))
		for name, buf := range rec.Outputs {
			v, err := ctyjson.Unmarshal(buf, cty.DynamicPseudoType)
			if err != nil {
				return StepStatus{}, fmt.Errorf("decoding output %q: %w", name, err)
			}
			status.Outputs[name] = v
		}
	}
	return status, nil
}
