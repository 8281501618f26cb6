package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/announce-api/internal/models"
)

const testCooldown = 10 * time.Millisecond

func newTestStack(t *testing.T, gateway *fakeGateway) (*Registry, *Scheduler) {
	t.Helper()
	registry := NewRegistry(gateway, nil)
	syncer := NewSyncer(gateway, nil, 1, 8)
	ctx, cancel := context.WithCancel(context.Background())
	syncer.Start(ctx)
	scheduler := NewScheduler(registry, syncer, testCooldown, nil)
	t.Cleanup(func() {
		scheduler.Stop()
		cancel()
		syncer.Stop()
	})
	return registry, scheduler
}

func waitForCurrent(t *testing.T, scheduler *Scheduler, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		current := scheduler.Current()
		return current != nil && current.ID == id
	}, time.Second, time.Millisecond, "expected %s to be showing", id)
}

func TestQueueOrderPriorityThenRecency(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(-time.Hour)
	t3 := t2.Add(30 * time.Minute)
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("A", models.AnnouncementPriorityMedium, t1),
		announcement("B", models.AnnouncementPriorityUrgent, t2),
		announcement("C", models.AnnouncementPriorityUrgent, t3),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))

	// Urgent beats medium; within urgent, newest first.
	waitForCurrent(t, scheduler, "C")
	scheduler.Dismiss()
	waitForCurrent(t, scheduler, "B")
	scheduler.Dismiss()
	waitForCurrent(t, scheduler, "A")
}

func TestShowingMarksViewedAtDisplayTime(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("a-1", models.AnnouncementPriorityHigh, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))

	waitForCurrent(t, scheduler, "a-1")
	snapshot := registry.Snapshot()
	assert.True(t, snapshot.Announcements[0].HasViewed)
	assert.Zero(t, snapshot.UnreadCount)
	require.Eventually(t, func() bool {
		return len(gateway.viewedIDs()) == 1
	}, time.Second, time.Millisecond)
}

func TestDismissedItemNeverResurfacesAfterStaleRefetch(t *testing.T) {
	now := time.Now().UTC()
	stale := []models.Announcement{
		announcement("low", models.AnnouncementPriorityLow, now),
		announcement("urgent", models.AnnouncementPriorityUrgent, now),
		announcement("high", models.AnnouncementPriorityHigh, now),
	}
	gateway := &fakeGateway{active: stale}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))

	waitForCurrent(t, scheduler, "urgent")
	scheduler.Dismiss()

	// A stale refetch still reporting the dismissed item unread must not
	// re-surface it.
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "high")
	scheduler.Dismiss()
	waitForCurrent(t, scheduler, "low")
}

func TestAcknowledgeDoesNotTransition(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("a-1", models.AnnouncementPriorityHigh, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "a-1")

	scheduler.Acknowledge()

	assert.Equal(t, StateShowing, scheduler.State())
	require.NotNil(t, scheduler.Current())
	snapshot := registry.Snapshot()
	assert.True(t, snapshot.Announcements[0].HasAcknowledged)
	require.Eventually(t, func() bool {
		return len(gateway.ackedIDs()) == 1
	}, time.Second, time.Millisecond)
}

func TestDismissEntersCooldownThenShowsNext(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("first", models.AnnouncementPriorityUrgent, now),
		announcement("second", models.AnnouncementPriorityLow, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "first")

	scheduler.Dismiss()
	assert.Equal(t, StateCooldown, scheduler.State())
	assert.Nil(t, scheduler.Current())

	waitForCurrent(t, scheduler, "second")
	assert.Equal(t, StateShowing, scheduler.State())
}

func TestEmptyQueueStaysIdle(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("only", models.AnnouncementPriorityLow, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "only")

	scheduler.Dismiss()
	require.Eventually(t, func() bool {
		return scheduler.State() == StateIdle
	}, time.Second, time.Millisecond)
	assert.Nil(t, scheduler.Current())
}

func TestStopCancelsPendingCooldown(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("first", models.AnnouncementPriorityUrgent, now),
		announcement("second", models.AnnouncementPriorityLow, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "first")

	scheduler.Dismiss()
	scheduler.Stop()

	time.Sleep(5 * testCooldown)
	assert.Equal(t, StateIdle, scheduler.State())
	assert.Nil(t, scheduler.Current())
}

func TestResetSessionClearsDismissalsForNewSignIn(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("shared", models.AnnouncementPriorityHigh, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "shared")
	scheduler.Dismiss()
	scheduler.Stop()

	// A different user signs in on the same scheduler; the previous
	// session's dismissal no longer applies.
	scheduler.ResetSession()
	registry.Init("user-2")
	require.NoError(t, registry.LoadActive(context.Background()))
	waitForCurrent(t, scheduler, "shared")
}

func TestViewedItemsExcludedFromQueue(t *testing.T) {
	now := time.Now().UTC()
	gateway := &fakeGateway{active: []models.Announcement{
		announcement("seen", models.AnnouncementPriorityUrgent, now, viewedBy("user-1")),
		announcement("fresh", models.AnnouncementPriorityLow, now),
	}}
	registry, scheduler := newTestStack(t, gateway)
	registry.Init("user-1")
	require.NoError(t, registry.LoadActive(context.Background()))

	// The already-viewed urgent item is skipped outright.
	waitForCurrent(t, scheduler, "fresh")
}
