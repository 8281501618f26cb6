package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

type fakeDeliveryRepo struct {
	active    []models.Announcement
	unread    []models.Announcement
	announced map[string]bool
	receipts  map[string]int
	listErr   error
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		announced: map[string]bool{},
		receipts:  map[string]int{},
	}
}

func (f *fakeDeliveryRepo) ListActiveFor(ctx context.Context, audience string) ([]models.Announcement, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active, nil
}

func (f *fakeDeliveryRepo) ListUnreadFor(ctx context.Context, audience, userID string) ([]models.Announcement, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.unread, nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	if !f.announced[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Announcement{ID: id}, nil
}

func (f *fakeDeliveryRepo) MarkReceipt(ctx context.Context, announcementID, userID string, kind models.ReceiptKind) (bool, error) {
	key := announcementID + "|" + userID + "|" + string(kind)
	f.receipts[key]++
	return f.receipts[key] > 1, nil
}

func TestActiveForResolvesReceiptFlags(t *testing.T) {
	repo := newFakeDeliveryRepo()
	now := time.Now().UTC()
	repo.active = []models.Announcement{
		{
			ID:        "a-1",
			CreatedAt: now,
			ViewedBy:  []models.Receipt{{AnnouncementID: "a-1", UserID: "user-1", Kind: models.ReceiptKindView}},
		},
		{ID: "a-2", CreatedAt: now},
	}
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	announcements, err := svc.ActiveFor(context.Background(), "user-1", models.RoleAgent)
	require.NoError(t, err)
	require.Len(t, announcements, 2)
	assert.True(t, announcements[0].HasViewed)
	assert.False(t, announcements[0].HasAcknowledged)
	assert.False(t, announcements[1].HasViewed)
}

func TestUnreadForResolvesAckFlag(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.unread = []models.Announcement{
		{
			ID:             "a-1",
			AcknowledgedBy: []models.Receipt{{AnnouncementID: "a-1", UserID: "user-1", Kind: models.ReceiptKindAcknowledge}},
		},
		{ID: "a-2"},
	}
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	unread, err := svc.UnreadFor(context.Background(), "user-1", models.RoleAgent)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.True(t, unread[0].HasAcknowledged)
	assert.False(t, unread[0].HasViewed)
	assert.False(t, unread[1].HasAcknowledged)
}

func TestUnreadCountDerivedFromListing(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.unread = []models.Announcement{{ID: "a-1"}, {ID: "a-2"}, {ID: "a-3"}}
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	count, err := svc.UnreadCount(context.Background(), "user-1", models.RoleAgent)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMarkViewedIdempotent(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.announced["a-1"] = true
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	result, err := svc.MarkViewed(context.Background(), "a-1", "user-1")
	require.NoError(t, err)
	assert.False(t, result.WasAlreadyRecorded)

	result, err = svc.MarkViewed(context.Background(), "a-1", "user-1")
	require.NoError(t, err)
	assert.True(t, result.WasAlreadyRecorded)
}

func TestMarkViewedUnknownAnnouncement(t *testing.T) {
	repo := newFakeDeliveryRepo()
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	_, err := svc.MarkViewed(context.Background(), "missing", "user-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestMarkAcknowledgedAlsoRecordsView(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.announced["a-1"] = true
	svc := NewDeliveryService(repo, nil, nil, nil, time.Minute)

	err := svc.MarkAcknowledged(context.Background(), "a-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.receipts["a-1|user-1|view"])
	assert.Equal(t, 1, repo.receipts["a-1|user-1|acknowledge"])

	// Acknowledging again changes nothing visible to the caller.
	err = svc.MarkAcknowledged(context.Background(), "a-1", "user-1")
	require.NoError(t, err)
}
