package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPoster struct {
	mu       sync.Mutex
	viewed   int
	acked    int
	fail     bool
	attempts int
}

func (c *countingPoster) PostViewed(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.fail {
		return assert.AnError
	}
	c.viewed++
	return nil
}

func (c *countingPoster) PostAcknowledged(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.fail {
		return assert.AnError
	}
	c.acked++
	return nil
}

func (c *countingPoster) stats() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewed, c.acked, c.attempts
}

func TestSyncerDispatchesBothKinds(t *testing.T) {
	poster := &countingPoster{}
	syncer := NewSyncer(poster, nil, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncer.Start(ctx)
	defer syncer.Stop()

	syncer.SyncViewed("a-1")
	syncer.SyncAcknowledged("a-1")

	require.Eventually(t, func() bool {
		viewed, acked, _ := poster.stats()
		return viewed == 1 && acked == 1
	}, time.Second, time.Millisecond)
}

func TestSyncerFailureIsNotRetried(t *testing.T) {
	poster := &countingPoster{fail: true}
	syncer := NewSyncer(poster, nil, 1, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncer.Start(ctx)
	defer syncer.Stop()

	syncer.SyncViewed("a-1")

	require.Eventually(t, func() bool {
		_, _, attempts := poster.stats()
		return attempts == 1
	}, time.Second, time.Millisecond)

	// Give a would-be retry time to fire; none may arrive.
	time.Sleep(50 * time.Millisecond)
	_, _, attempts := poster.stats()
	assert.Equal(t, 1, attempts)
}

func TestSyncerEnqueueBeforeStartIsDropped(t *testing.T) {
	poster := &countingPoster{}
	syncer := NewSyncer(poster, nil, 1, 4)

	// Not started: the call is logged and dropped, never panics.
	syncer.SyncViewed("a-1")

	time.Sleep(20 * time.Millisecond)
	viewed, _, _ := poster.stats()
	assert.Zero(t, viewed)
}
