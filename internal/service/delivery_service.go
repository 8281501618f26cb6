package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

type deliveryRepository interface {
	ListActiveFor(ctx context.Context, audience string) ([]models.Announcement, error)
	ListUnreadFor(ctx context.Context, audience, userID string) ([]models.Announcement, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	MarkReceipt(ctx context.Context, announcementID, userID string, kind models.ReceiptKind) (bool, error)
}

// DeliveryService serves the read side of announcement delivery and records
// view and acknowledgment receipts.
type DeliveryService struct {
	repo           deliveryRepository
	cache          *CacheService
	metrics        *MetricsService
	logger         *zap.Logger
	unreadCacheTTL time.Duration
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(repo deliveryRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, unreadCacheTTL time.Duration) *DeliveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unreadCacheTTL <= 0 {
		unreadCacheTTL = time.Minute
	}
	return &DeliveryService{repo: repo, cache: cache, metrics: metrics, logger: logger, unreadCacheTTL: unreadCacheTTL}
}

// ActiveFor lists deliverable announcements for the user, most recent first,
// with the caller's receipt flags resolved.
func (s *DeliveryService) ActiveFor(ctx context.Context, userID string, role models.UserRole) ([]models.Announcement, error) {
	announcements, err := s.repo.ListActiveFor(ctx, role.AudienceTag())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active announcements")
	}
	for i := range announcements {
		announcements[i].HasViewed = announcements[i].ViewedByUser(userID)
		announcements[i].HasAcknowledged = announcements[i].AcknowledgedByUser(userID)
	}
	return announcements, nil
}

// UnreadFor lists deliverable announcements with no view receipt for the
// user. Clients render the list directly and derive their badge count from
// its length; the listing is cached briefly so badge polling stays cheap.
func (s *DeliveryService) UnreadFor(ctx context.Context, userID string, role models.UserRole) ([]models.Announcement, error) {
	cacheKey := s.unreadKey(userID)
	if s.cache.Enabled() {
		var cached []models.Announcement
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	unread, err := s.repo.ListUnreadFor(ctx, role.AudienceTag(), userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unread announcements")
	}
	for i := range unread {
		// Unread means no view receipt; only the acknowledgment flag needs
		// resolving.
		unread[i].HasAcknowledged = unread[i].AcknowledgedByUser(userID)
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, unread, s.unreadCacheTTL); err != nil {
			s.logger.Warn("failed to cache unread listing", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return unread, nil
}

// UnreadCount is always derived from the unread listing so it cannot drift
// from what a client would render.
func (s *DeliveryService) UnreadCount(ctx context.Context, userID string, role models.UserRole) (int, error) {
	unread, err := s.UnreadFor(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// MarkViewed records a view receipt. Repeated calls for the same announcement
// and user are reported as already recorded rather than errors.
func (s *DeliveryService) MarkViewed(ctx context.Context, announcementID, userID string) (*models.MarkViewedResult, error) {
	if err := s.ensureExists(ctx, announcementID); err != nil {
		return nil, err
	}
	already, err := s.repo.MarkReceipt(ctx, announcementID, userID, models.ReceiptKindView)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record view receipt")
	}
	s.metrics.RecordReceipt(string(models.ReceiptKindView), already)
	if !already {
		s.invalidateUnread(ctx, userID)
	}
	return &models.MarkViewedResult{WasAlreadyRecorded: already}, nil
}

// MarkAcknowledged records an acknowledgment receipt. Acknowledging also
// records a view receipt, since an acknowledged announcement has been seen.
func (s *DeliveryService) MarkAcknowledged(ctx context.Context, announcementID, userID string) error {
	if err := s.ensureExists(ctx, announcementID); err != nil {
		return err
	}
	viewAlready, err := s.repo.MarkReceipt(ctx, announcementID, userID, models.ReceiptKindView)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record view receipt")
	}
	ackAlready, err := s.repo.MarkReceipt(ctx, announcementID, userID, models.ReceiptKindAcknowledge)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record acknowledgment receipt")
	}
	s.metrics.RecordReceipt(string(models.ReceiptKindAcknowledge), ackAlready)
	if !viewAlready {
		s.invalidateUnread(ctx, userID)
	}
	return nil
}

func (s *DeliveryService) ensureExists(ctx context.Context, announcementID string) error {
	if _, err := s.repo.GetByID(ctx, announcementID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return nil
}

func (s *DeliveryService) invalidateUnread(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, s.unreadKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate unread cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *DeliveryService) unreadKey(userID string) string {
	return fmt.Sprintf("delivery:unread:%s", userID)
}
