package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/announce-api/internal/client"
	"github.com/dealerhub/announce-api/internal/middleware"
	"github.com/dealerhub/announce-api/internal/models"
	"github.com/dealerhub/announce-api/internal/service"
)

type fakeDeliveryRepo struct {
	active   []models.Announcement
	unread   []models.Announcement
	known    map[string]bool
	receipts map[string]int
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{known: map[string]bool{}, receipts: map[string]int{}}
}

func (f *fakeDeliveryRepo) ListActiveFor(context.Context, string) ([]models.Announcement, error) {
	return f.active, nil
}

func (f *fakeDeliveryRepo) ListUnreadFor(context.Context, string, string) ([]models.Announcement, error) {
	return f.unread, nil
}

func (f *fakeDeliveryRepo) GetByID(_ context.Context, id string) (*models.Announcement, error) {
	if !f.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Announcement{ID: id}, nil
}

func (f *fakeDeliveryRepo) MarkReceipt(_ context.Context, announcementID, userID string, kind models.ReceiptKind) (bool, error) {
	key := announcementID + "|" + userID + "|" + string(kind)
	f.receipts[key]++
	return f.receipts[key] > 1, nil
}

func authedContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAgent})
	return c, rec
}

func TestAnnouncementHandlerActive(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.active = []models.Announcement{{ID: "a-1", Title: "Hello", CreatedAt: time.Now().UTC()}}
	handler := NewAnnouncementHandler(service.NewDeliveryService(repo, nil, nil, nil, time.Minute))

	c, rec := authedContext(t, http.MethodGet, "/announcements/active")
	handler.Active(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []models.Announcement `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "a-1", envelope.Data[0].ID)
}

func TestAnnouncementHandlerActiveUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAnnouncementHandler(service.NewDeliveryService(newFakeDeliveryRepo(), nil, nil, nil, time.Minute))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/announcements/active", nil)
	handler.Active(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnnouncementHandlerUnreadListsWithCount(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.unread = []models.Announcement{{ID: "a-1"}, {ID: "a-2"}}
	handler := NewAnnouncementHandler(service.NewDeliveryService(repo, nil, nil, nil, time.Minute))

	c, rec := authedContext(t, http.MethodGet, "/announcements/unread")
	handler.Unread(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []models.Announcement  `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
	assert.Equal(t, "a-1", envelope.Data[0].ID)
	assert.EqualValues(t, 2, envelope.Meta["unread_count"])
}

// The delivery endpoints and the gateway client ship together; the unread
// listing must decode through the client end to end.
func TestAnnouncementHandlerUnreadDecodesThroughGatewayClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newFakeDeliveryRepo()
	repo.unread = []models.Announcement{
		{ID: "a-1", Title: "Hello", Priority: models.AnnouncementPriorityHigh, Status: models.AnnouncementStatusActive, CreatedAt: time.Now().UTC()},
		{ID: "a-2", Title: "World", Status: models.AnnouncementStatusActive, CreatedAt: time.Now().UTC()},
	}
	handler := NewAnnouncementHandler(service.NewDeliveryService(repo, nil, nil, nil, time.Minute))

	router := gin.New()
	router.GET("/announcements/unread", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAgent})
		handler.Unread(c)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	gateway := client.NewHTTPGateway(server.URL, func() string { return "token" }, time.Second)
	unread, err := gateway.FetchUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "a-1", unread[0].ID)
	assert.Equal(t, models.AnnouncementPriorityHigh, unread[0].Priority)
}

func TestAnnouncementHandlerMarkViewedTwice(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.known["a-1"] = true
	handler := NewAnnouncementHandler(service.NewDeliveryService(repo, nil, nil, nil, time.Minute))

	c, rec := authedContext(t, http.MethodPost, "/announcements/a-1/view")
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}
	handler.MarkViewed(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = authedContext(t, http.MethodPost, "/announcements/a-1/view")
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}
	handler.MarkViewed(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data["already_recorded"])
}

func TestAnnouncementHandlerAcknowledgeMissing(t *testing.T) {
	handler := NewAnnouncementHandler(service.NewDeliveryService(newFakeDeliveryRepo(), nil, nil, nil, time.Minute))

	c, rec := authedContext(t, http.MethodPost, "/announcements/nope/acknowledge")
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	handler.Acknowledge(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
