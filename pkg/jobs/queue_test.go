package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	attempts int
	fail     bool
}

func (r *recorder) handle(context.Context, Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func TestQueueDispatchesJobs(t *testing.T) {
	rec := &recorder{}
	q := NewQueue("test", rec.handle, QueueConfig{Workers: 2, BufferSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "t"}))
	require.NoError(t, q.Enqueue(Job{ID: "2", Type: "t"}))

	require.Eventually(t, func() bool {
		return rec.count() == 2
	}, time.Second, time.Millisecond)
}

func TestQueueZeroRetriesDropsFailedJob(t *testing.T) {
	rec := &recorder{fail: true}
	q := NewQueue("test", rec.handle, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 0, RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "t"}))

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestQueueRetriesUpToLimit(t *testing.T) {
	rec := &recorder{fail: true}
	q := NewQueue("test", rec.handle, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 2, RetryDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "t"}))

	require.Eventually(t, func() bool {
		return rec.count() == 3
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, rec.count())
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "1"})
	assert.Error(t, err)
}
