package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

// Snapshot is the read-only view of registry state handed to the presentation
// layer and the scheduler.
type Snapshot struct {
	Announcements []models.Announcement
	UnreadCount   int
	Loading       bool
	Err           error
}

// Registry is the session-scoped cache of announcements relevant to the
// current user and the single point of mutation for viewed and acknowledged
// state. The unread count is always recomputed from the list, never kept as
// an independent counter.
type Registry struct {
	mu            sync.RWMutex
	gateway       Gateway
	logger        *zap.Logger
	userID        string
	announcements []models.Announcement
	unreadCount   int
	loading       bool
	err           error
	onChange      []func(Snapshot)
}

// NewRegistry builds an empty registry bound to the given gateway.
func NewRegistry(gateway Gateway, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{gateway: gateway, logger: logger}
}

// Init binds the registry to a signed-in user and clears any previous state.
func (r *Registry) Init(userID string) {
	r.mu.Lock()
	r.userID = userID
	r.announcements = nil
	r.unreadCount = 0
	r.err = nil
	r.loading = false
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
}

// Reset clears all cached state. Called on sign-out. In-flight sync calls are
// simply ignored when they complete.
func (r *Registry) Reset() {
	r.Init("")
}

// OnChange registers a hook invoked after every state change with the fresh
// snapshot. Hooks run outside the registry lock.
func (r *Registry) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Snapshot returns the current read-only state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// LoadActive fetches the caller's active announcements and replaces the local
// list wholesale. On failure the previous cache is retained untouched and the
// error is surfaced. With no signed-in user it clears the cache and returns
// nil.
func (r *Registry) LoadActive(ctx context.Context) error {
	r.mu.Lock()
	userID := r.userID
	if userID == "" {
		r.announcements = nil
		r.unreadCount = 0
		r.err = nil
		snapshot := r.snapshotLocked()
		r.mu.Unlock()
		r.notify(snapshot)
		return nil
	}
	r.loading = true
	loadingSnapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(loadingSnapshot)

	fetched, err := r.gateway.FetchActive(ctx)

	r.mu.Lock()
	r.loading = false
	if err != nil {
		// Previous cache stays bit-identical; only the error field moves.
		r.err = err
		snapshot := r.snapshotLocked()
		r.mu.Unlock()
		r.notify(snapshot)
		return appErrors.FromError(err)
	}
	if r.userID != userID {
		// Signed out (or switched users) while the fetch was in flight; the
		// stale result must not resurrect the old session's list.
		snapshot := r.snapshotLocked()
		r.mu.Unlock()
		r.notify(snapshot)
		return nil
	}
	for i := range fetched {
		fetched[i].HasViewed = fetched[i].ViewedByUser(userID)
		fetched[i].HasAcknowledged = fetched[i].AcknowledgedByUser(userID)
	}
	r.announcements = fetched
	r.err = nil
	r.recomputeUnreadLocked()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
	return nil
}

// LoadUnreadCount refreshes only the unread total from the lighter endpoint.
// It is independent of LoadActive and may race with it; callers tolerate
// eventual consistency between the two.
func (r *Registry) LoadUnreadCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	userID := r.userID
	r.mu.RUnlock()
	if userID == "" {
		return 0, nil
	}

	unread, err := r.gateway.FetchUnread(ctx)
	if err != nil {
		return 0, appErrors.FromError(err)
	}

	r.mu.Lock()
	if r.userID != userID {
		// Signed out (or switched users) while the fetch was in flight; a
		// stale count must not land on the cleared registry.
		r.mu.Unlock()
		return 0, nil
	}
	count := len(unread)
	r.unreadCount = count
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
	return count, nil
}

// MarkViewed sets HasViewed for the given id. Idempotent; unknown ids are a
// silent no-op since they may have aged out of the cache. Returns whether the
// announcement was previously unread.
func (r *Registry) MarkViewed(id string) bool {
	r.mu.Lock()
	changed := false
	for i := range r.announcements {
		if r.announcements[i].ID == id {
			if !r.announcements[i].HasViewed {
				r.announcements[i].HasViewed = true
				changed = true
			}
			break
		}
	}
	if !changed {
		r.mu.Unlock()
		return false
	}
	r.recomputeUnreadLocked()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
	return true
}

// MarkAcknowledged sets HasAcknowledged for the given id. Idempotent and
// orthogonal to the unread count. Unknown ids are a silent no-op.
func (r *Registry) MarkAcknowledged(id string) {
	r.mu.Lock()
	changed := false
	for i := range r.announcements {
		if r.announcements[i].ID == id {
			if !r.announcements[i].HasAcknowledged {
				r.announcements[i].HasAcknowledged = true
				changed = true
			}
			break
		}
	}
	if !changed {
		r.mu.Unlock()
		return
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snapshot)
}

func (r *Registry) recomputeUnreadLocked() {
	count := 0
	for i := range r.announcements {
		if r.announcements[i].Status == models.AnnouncementStatusActive && !r.announcements[i].HasViewed {
			count++
		}
	}
	r.unreadCount = count
}

func (r *Registry) snapshotLocked() Snapshot {
	announcements := make([]models.Announcement, len(r.announcements))
	copy(announcements, r.announcements)
	return Snapshot{
		Announcements: announcements,
		UnreadCount:   r.unreadCount,
		Loading:       r.loading,
		Err:           r.err,
	}
}

func (r *Registry) notify(snapshot Snapshot) {
	r.mu.RLock()
	hooks := make([]func(Snapshot), len(r.onChange))
	copy(hooks, r.onChange)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn(snapshot)
	}
}
