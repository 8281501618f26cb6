package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

func TestFetchActiveDecodesAndNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/announcements/active", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"a-1","title":"Known","type":"warning","priority":"urgent","status":"active"},
			{"id":"a-2","title":"Odd","type":"banner","priority":"critical","status":"mystery"}
		]}`))
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, func() string { return "token-1" }, time.Second)
	announcements, err := gateway.FetchActive(context.Background())
	require.NoError(t, err)
	require.Len(t, announcements, 2)

	assert.Equal(t, models.AnnouncementPriorityUrgent, announcements[0].Priority)

	// Unknown enum values are narrowed to safe defaults on ingestion.
	assert.Equal(t, models.AnnouncementTypeInfo, announcements[1].Type)
	assert.Equal(t, models.AnnouncementPriorityLow, announcements[1].Priority)
	assert.Equal(t, models.AnnouncementStatusArchived, announcements[1].Status)
}

func TestFetchActiveNon200IsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, nil, time.Second)
	_, err := gateway.FetchActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFetchFailed.Code, appErrors.FromError(err).Code)
}

func TestFetchActiveTransportFailure(t *testing.T) {
	gateway := NewHTTPGateway("http://127.0.0.1:1", nil, 50*time.Millisecond)
	_, err := gateway.FetchActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFetchFailed.Code, appErrors.FromError(err).Code)
}

func TestPostViewedHitsReceiptEndpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, nil, time.Second)
	require.NoError(t, gateway.PostViewed(context.Background(), "a-1"))
	assert.Equal(t, "/announcements/a-1/view", gotPath)
}

func TestPostAcknowledgedFailureIsSyncError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, nil, time.Second)
	err := gateway.PostAcknowledged(context.Background(), "a-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSyncFailed.Code, appErrors.FromError(err).Code)
}
