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

type fakeBroadcastRepo struct {
	byID          map[string]*models.Announcement
	created       []*models.Announcement
	statusUpdates map[string]models.AnnouncementStatus
	publishedAt   map[string]*time.Time
}

func newFakeBroadcastRepo() *fakeBroadcastRepo {
	return &fakeBroadcastRepo{
		byID:          map[string]*models.Announcement{},
		statusUpdates: map[string]models.AnnouncementStatus{},
		publishedAt:   map[string]*time.Time{},
	}
}

func (f *fakeBroadcastRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	out := make([]models.Announcement, 0, len(f.byID))
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (f *fakeBroadcastRepo) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (f *fakeBroadcastRepo) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = "generated-id"
	}
	f.created = append(f.created, announcement)
	f.byID[announcement.ID] = announcement
	return nil
}

func (f *fakeBroadcastRepo) Update(ctx context.Context, announcement *models.Announcement) error {
	if _, ok := f.byID[announcement.ID]; !ok {
		return sql.ErrNoRows
	}
	f.byID[announcement.ID] = announcement
	return nil
}

func (f *fakeBroadcastRepo) UpdateStatus(ctx context.Context, id string, status models.AnnouncementStatus, publishedAt *time.Time) error {
	if _, ok := f.byID[id]; !ok {
		return sql.ErrNoRows
	}
	f.statusUpdates[id] = status
	f.publishedAt[id] = publishedAt
	return nil
}

func (f *fakeBroadcastRepo) Delete(ctx context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func validCreateRequest() CreateBroadcastRequest {
	return CreateBroadcastRequest{
		Title:          "Scheduled maintenance",
		Message:        "The portal is unavailable Saturday night.",
		Type:           "maintenance",
		Priority:       "high",
		TargetAudience: []string{"all"},
		CreatedBy:      "admin-1",
	}
}

func TestCreateBroadcastStartsAsDraft(t *testing.T) {
	repo := newFakeBroadcastRepo()
	svc := NewBroadcastService(repo, nil, nil, nil)

	created, err := svc.Create(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementStatusDraft, created.Status)
	assert.Equal(t, models.AnnouncementPriorityHigh, created.Priority)
	require.Len(t, repo.created, 1)
}

func TestCreateBroadcastRejectsUnknownPriority(t *testing.T) {
	repo := newFakeBroadcastRepo()
	svc := NewBroadcastService(repo, nil, nil, nil)

	req := validCreateRequest()
	req.Priority = "critical"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateBroadcastRejectsUnknownAudience(t *testing.T) {
	repo := newFakeBroadcastRepo()
	svc := NewBroadcastService(repo, nil, nil, nil)

	req := validCreateRequest()
	req.TargetAudience = []string{"everyone"}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
}

func TestCreateBroadcastRejectsInvertedWindow(t *testing.T) {
	repo := newFakeBroadcastRepo()
	svc := NewBroadcastService(repo, nil, nil, nil)

	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	req := validCreateRequest()
	req.PublishedAt = &now
	req.ExpiresAt = &earlier
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPublishStampsPublishedAt(t *testing.T) {
	repo := newFakeBroadcastRepo()
	repo.byID["a-1"] = &models.Announcement{ID: "a-1", Status: models.AnnouncementStatusDraft}
	svc := NewBroadcastService(repo, nil, nil, nil)

	require.NoError(t, svc.Publish(context.Background(), "a-1"))
	assert.Equal(t, models.AnnouncementStatusActive, repo.statusUpdates["a-1"])
	require.NotNil(t, repo.publishedAt["a-1"])
}

func TestArchiveUnknownAnnouncement(t *testing.T) {
	repo := newFakeBroadcastRepo()
	svc := NewBroadcastService(repo, nil, nil, nil)

	err := svc.Archive(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
