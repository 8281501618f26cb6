package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

// Gateway is the remote authority for announcements and receipts. The server
// filters by audience, status and expiry; callers trust its result sets.
type Gateway interface {
	FetchActive(ctx context.Context) ([]models.Announcement, error)
	FetchUnread(ctx context.Context) ([]models.Announcement, error)
	PostViewed(ctx context.Context, id string) error
	PostAcknowledged(ctx context.Context, id string) error
}

// TokenProvider supplies the bearer token for gateway calls. It is consulted
// per request so rotated tokens are picked up without rebuilding the client.
type TokenProvider func() string

// HTTPGateway talks to the announcement API over REST.
type HTTPGateway struct {
	baseURL string
	token   TokenProvider
	client  *http.Client
}

// NewHTTPGateway builds a gateway client for the given base URL, which should
// include the API prefix (e.g. https://api.example.com/api/v1).
func NewHTTPGateway(baseURL string, token TokenProvider, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type listEnvelope struct {
	Data  []models.Announcement `json:"data"`
	Error *appErrors.Error      `json:"error"`
}

// FetchActive returns the active announcements targeted at the caller.
func (g *HTTPGateway) FetchActive(ctx context.Context) ([]models.Announcement, error) {
	return g.fetchList(ctx, "/announcements/active")
}

// FetchUnread returns the announcements the caller has not yet viewed.
func (g *HTTPGateway) FetchUnread(ctx context.Context) ([]models.Announcement, error) {
	return g.fetchList(ctx, "/announcements/unread")
}

// PostViewed records a view receipt server-side. Idempotent.
func (g *HTTPGateway) PostViewed(ctx context.Context, id string) error {
	return g.postReceipt(ctx, id, "view")
}

// PostAcknowledged records an acknowledgment receipt server-side. Idempotent.
func (g *HTTPGateway) PostAcknowledged(ctx context.Context, id string) error {
	return g.postReceipt(ctx, id, "acknowledge")
}

func (g *HTTPGateway) fetchList(ctx context.Context, path string) ([]models.Announcement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFetchFailed.Code, appErrors.ErrFetchFailed.Status, "failed to build request")
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFetchFailed.Code, appErrors.ErrFetchFailed.Status, appErrors.ErrFetchFailed.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrFetchFailed, fmt.Sprintf("gateway returned %d for %s", resp.StatusCode, path))
	}

	var envelope listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrFetchFailed.Code, appErrors.ErrFetchFailed.Status, "failed to decode announcements")
	}
	if envelope.Error != nil {
		return nil, appErrors.Clone(appErrors.ErrFetchFailed, envelope.Error.Message)
	}

	// Narrow loosely-typed payloads before anything downstream sorts on them.
	for i := range envelope.Data {
		envelope.Data[i].Normalize()
	}
	return envelope.Data, nil
}

func (g *HTTPGateway) postReceipt(ctx context.Context, id, action string) error {
	target := fmt.Sprintf("%s/announcements/%s/%s", g.baseURL, url.PathEscape(id), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, "failed to build request")
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrSyncFailed.Code, appErrors.ErrSyncFailed.Status, appErrors.ErrSyncFailed.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return appErrors.Clone(appErrors.ErrSyncFailed, fmt.Sprintf("gateway returned %d for %s %s", resp.StatusCode, action, id))
	}
	return nil
}

func (g *HTTPGateway) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if g.token != nil {
		if token := g.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}
