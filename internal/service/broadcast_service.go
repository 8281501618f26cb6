package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
	appErrors "github.com/dealerhub/announce-api/pkg/errors"
)

type broadcastRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	UpdateStatus(ctx context.Context, id string, status models.AnnouncementStatus, publishedAt *time.Time) error
	Delete(ctx context.Context, id string) error
}

// BroadcastService handles administrator authoring of announcements.
type BroadcastService struct {
	repo      broadcastRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBroadcastService constructs the service and registers the announcement
// field validations.
func NewBroadcastService(repo broadcastRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *BroadcastService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BroadcastService{repo: repo, cache: cache, validator: validate, logger: logger}
	svc.validator.RegisterValidation("audience", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case models.AudienceAll, models.AudienceAgent, models.AudienceDealer, models.AudienceAdmin:
			return true
		default:
			return false
		}
	})
	svc.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementPriority(strings.ToLower(fl.Field().String())) {
		case models.AnnouncementPriorityLow, models.AnnouncementPriorityMedium,
			models.AnnouncementPriorityHigh, models.AnnouncementPriorityUrgent:
			return true
		default:
			return false
		}
	})
	svc.validator.RegisterValidation("antype", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementType(strings.ToLower(fl.Field().String())) {
		case models.AnnouncementTypeInfo, models.AnnouncementTypeSuccess,
			models.AnnouncementTypeWarning, models.AnnouncementTypeError,
			models.AnnouncementTypeMaintenance:
			return true
		default:
			return false
		}
	})
	return svc
}

// BroadcastListRequest describes filters for listing announcements.
type BroadcastListRequest struct {
	Status   string `json:"status"`
	Audience string `json:"audience"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// CreateBroadcastRequest describes the create payload.
type CreateBroadcastRequest struct {
	Title          string     `json:"title" validate:"required"`
	Message        string     `json:"message" validate:"required"`
	Type           string     `json:"type" validate:"required,antype"`
	Priority       string     `json:"priority" validate:"required,priority"`
	TargetAudience []string   `json:"target_audience" validate:"required,min=1,dive,audience"`
	ActionRequired bool       `json:"action_required"`
	ActionURL      *string    `json:"action_url"`
	ActionText     *string    `json:"action_text"`
	PublishedAt    *time.Time `json:"published_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CreatedBy      string     `json:"-"`
}

// UpdateBroadcastRequest describes the update payload.
type UpdateBroadcastRequest struct {
	Title          string     `json:"title" validate:"required"`
	Message        string     `json:"message" validate:"required"`
	Type           string     `json:"type" validate:"required,antype"`
	Priority       string     `json:"priority" validate:"required,priority"`
	TargetAudience []string   `json:"target_audience" validate:"required,min=1,dive,audience"`
	ActionRequired bool       `json:"action_required"`
	ActionURL      *string    `json:"action_url"`
	ActionText     *string    `json:"action_text"`
	PublishedAt    *time.Time `json:"published_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// List returns announcements with pagination.
func (s *BroadcastService) List(ctx context.Context, req BroadcastListRequest) ([]models.Announcement, *models.Pagination, error) {
	filter := models.AnnouncementFilter{
		Audience: strings.ToLower(req.Audience),
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Status != "" {
		status := models.AnnouncementStatus(strings.ToLower(req.Status))
		filter.Status = &status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns an announcement by id.
func (s *BroadcastService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	ann, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	return ann, nil
}

// Create registers a new draft announcement.
func (s *BroadcastService) Create(ctx context.Context, req CreateBroadcastRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := validateWindow(req.PublishedAt, req.ExpiresAt); err != nil {
		return nil, err
	}
	announcement := &models.Announcement{
		Title:          req.Title,
		Message:        req.Message,
		Type:           models.AnnouncementType(strings.ToLower(req.Type)),
		Priority:       models.AnnouncementPriority(strings.ToLower(req.Priority)),
		TargetAudience: lowerAll(req.TargetAudience),
		Status:         models.AnnouncementStatusDraft,
		ActionRequired: req.ActionRequired,
		ActionURL:      req.ActionURL,
		ActionText:     req.ActionText,
		PublishedAt:    req.PublishedAt,
		ExpiresAt:      req.ExpiresAt,
		CreatedBy:      req.CreatedBy,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *BroadcastService) Update(ctx context.Context, id string, req UpdateBroadcastRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := validateWindow(req.PublishedAt, req.ExpiresAt); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	existing.Title = req.Title
	existing.Message = req.Message
	existing.Type = models.AnnouncementType(strings.ToLower(req.Type))
	existing.Priority = models.AnnouncementPriority(strings.ToLower(req.Priority))
	existing.TargetAudience = lowerAll(req.TargetAudience)
	existing.ActionRequired = req.ActionRequired
	existing.ActionURL = req.ActionURL
	existing.ActionText = req.ActionText
	existing.PublishedAt = req.PublishedAt
	existing.ExpiresAt = req.ExpiresAt
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.invalidateDelivery(ctx)
	return existing, nil
}

// Publish activates a draft announcement, stamping published_at when unset.
func (s *BroadcastService) Publish(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.AnnouncementStatusActive, &now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish announcement")
	}
	s.invalidateDelivery(ctx)
	return nil
}

// Archive retires an announcement from delivery.
func (s *BroadcastService) Archive(ctx context.Context, id string) error {
	if err := s.repo.UpdateStatus(ctx, id, models.AnnouncementStatusArchived, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive announcement")
	}
	s.invalidateDelivery(ctx)
	return nil
}

// Delete removes an announcement and its receipts.
func (s *BroadcastService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.invalidateDelivery(ctx)
	return nil
}

func (s *BroadcastService) invalidateDelivery(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "delivery:*"); err != nil {
		s.logger.Warn("failed to invalidate delivery cache", zap.Error(err))
	}
}

func validateWindow(publishedAt, expiresAt *time.Time) error {
	if publishedAt != nil && expiresAt != nil && !expiresAt.After(*publishedAt) {
		return appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
	}
	return nil
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
