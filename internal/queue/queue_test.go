package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestMemQueue_DeliversInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := NewMemQueue(4)
	require.NoError(t, q.Enqueue(ctx, &WorkItem{JobID: "j", Step: "a"}))
	require.NoError(t, q.Enqueue(ctx, &WorkItem{JobID: "j", Step: "b"}))

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", item.Step)

	item, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", item.Step)
}

func TestMemQueue_DequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewMemQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkItem_WireRoundTrip(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	item := &WorkItem{
		JobID:  "job-42",
		Step:   "train",
		Plugin: "trainer",
		Args: map[string]cty.Value{
			"epochs": cty.NumberIntVal(10),
			"uri":    cty.StringVal("s3://bucket/data.csv"),
			"report": cty.ObjectVal(map[string]cty.Value{"score": cty.NumberFloatVal(0.93)}),
			"tag":    cty.NullVal(cty.String),
		},
		Timeout: 90 * time.Second,
	}

	// --- Act ---
	data, err := EncodeItem(item)
	require.NoError(t, err)
	got, err := DecodeItem(data)
	require.NoError(t, err)

	// --- Assert ---
	require.Equal(t, item.JobID, got.JobID)
	require.Equal(t, item.Step, got.Step)
	require.Equal(t, item.Plugin, got.Plugin)
	require.Equal(t, item.Timeout, got.Timeout)
	require.Len(t, got.Args, len(item.Args))
	for name, want := range item.Args {
		require.True(t, want.RawEquals(got.Args[name]), "argument %q", name)
	}
}
