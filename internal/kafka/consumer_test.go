package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	queue   []kafka.Message
	commits []kafka.Message
	closed  bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.commits))
	for i, m := range r.commits {
		out[i] = m.Offset
	}
	return out
}

func startConsumer(t *testing.T, c *Consumer, h Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return cancel, done
}

func TestConsumer_FailedMessageRetriedBeforeLaterOffsets(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Partition: 0, Offset: 10},
		{Partition: 0, Offset: 11},
		{Partition: 0, Offset: 12},
	}}
	c := newConsumer(r, "order.placed", 4)
	c.backoff = time.Millisecond

	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
		handled  []int64
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 10 && attempts[m.Offset] < 3 {
			return errors.New("db down")
		}
		handled = append(handled, m.Offset)
		return nil
	}

	cancel, done := startConsumer(t, c, h)
	require.Eventually(t, func() bool { return len(r.committed()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11, 12}, r.committed())
	mu.Lock()
	assert.Equal(t, []int64{10, 11, 12}, handled)
	assert.Equal(t, 3, attempts[10])
	mu.Unlock()
	assert.True(t, r.closed)
}

func TestConsumer_UnhandledMessageNeverCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Partition: 1, Offset: 5},
		{Partition: 1, Offset: 6},
		{Partition: 2, Offset: 40},
	}}
	c := newConsumer(r, "order.placed", 2)
	c.backoff = time.Millisecond
	c.maxBackoff = 5 * time.Millisecond

	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 5 {
			return errors.New("still failing")
		}
		return nil
	}

	cancel, done := startConsumer(t, c, h)
	// partition 2 lives on another worker and keeps flowing
	require.Eventually(t, func() bool { return len(r.committed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{40}, r.committed(), "nothing on partition 1 may be committed past the failing offset")
}
