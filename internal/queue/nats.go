package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsStreamName  = "MLGRID_WORK"
	natsSubject     = "mlgrid.work"
	natsDurableName = "workers"
)

// NatsQueue is a durable Queue backed by a NATS JetStream stream. Every
// worker process shares one durable pull consumer, which gives
// at-least-once delivery with competing consumers.
type NatsQueue struct {
	js  nats.JetStreamContext
	sub *nats.Subscription
}

// NewNatsQueue sets up the stream and the shared durable consumer on an
// existing connection.
func NewNatsQueue(nc *nats.Conn) (*NatsQueue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      natsStreamName,
		Subjects:  []string{natsSubject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("ensuring work stream: %w", err)
	}

	sub, err := js.PullSubscribe(natsSubject, natsDurableName)
	if err != nil {
		return nil, fmt.Errorf("subscribing to work stream: %w", err)
	}
	return &NatsQueue{js: js, sub: sub}, nil
}

// Enqueue implements Queue.
func (q *NatsQueue) Enqueue(ctx context.Context, item *WorkItem) error {
	data, err := EncodeItem(item)
	if err != nil {
		return err
	}
	if _, err := q.js.Publish(natsSubject, data, nats.Context(ctx)); err != nil {
		return &QueueUnavailableError{Err: err}
	}
	return nil
}

// Dequeue implements Queue. Fetch polls in short rounds so ctx cancellation
// is observed promptly.
func (q *NatsQueue) Dequeue(ctx context.Context) (*WorkItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := q.sub.Fetch(1, nats.MaxWait(2*time.Second))
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching work item: %w", err)
		}
		msg := msgs[0]
		item, err := DecodeItem(msg.Data)
		if err != nil {
			// Poison message: acknowledge so it never redelivers.
			_ = msg.Ack()
			return nil, fmt.Errorf("decoding work item: %w", err)
		}
		if err := msg.Ack(); err != nil {
			return nil, fmt.Errorf("acknowledging work item: %w", err)
		}
		return item, nil
	}
}
