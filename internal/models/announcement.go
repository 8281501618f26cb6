package models

import "time"

// AnnouncementType is a presentation hint carried through to clients; it has
// no behavioural effect on delivery.
type AnnouncementType string

const (
	AnnouncementTypeInfo        AnnouncementType = "info"
	AnnouncementTypeSuccess     AnnouncementType = "success"
	AnnouncementTypeWarning     AnnouncementType = "warning"
	AnnouncementTypeError       AnnouncementType = "error"
	AnnouncementTypeMaintenance AnnouncementType = "maintenance"
)

// AnnouncementPriority orders announcements for display: urgent > high >
// medium > low.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow    AnnouncementPriority = "low"
	AnnouncementPriorityMedium AnnouncementPriority = "medium"
	AnnouncementPriorityHigh   AnnouncementPriority = "high"
	AnnouncementPriorityUrgent AnnouncementPriority = "urgent"
)

// Rank returns the numeric sort weight for a priority. Unknown values rank
// lowest.
func (p AnnouncementPriority) Rank() int {
	switch p {
	case AnnouncementPriorityUrgent:
		return 4
	case AnnouncementPriorityHigh:
		return 3
	case AnnouncementPriorityMedium:
		return 2
	case AnnouncementPriorityLow:
		return 1
	default:
		return 0
	}
}

// AnnouncementStatus captures the authoring lifecycle. Only active
// announcements are ever delivered to end users.
type AnnouncementStatus string

const (
	AnnouncementStatusDraft    AnnouncementStatus = "draft"
	AnnouncementStatusActive   AnnouncementStatus = "active"
	AnnouncementStatusExpired  AnnouncementStatus = "expired"
	AnnouncementStatusArchived AnnouncementStatus = "archived"
)

// Audience tags an announcement can target.
const (
	AudienceAll    = "all"
	AudienceAgent  = "agent"
	AudienceDealer = "dealer"
	AudienceAdmin  = "admin"
)

// ReceiptKind distinguishes view receipts from acknowledgment receipts.
type ReceiptKind string

const (
	ReceiptKindView        ReceiptKind = "view"
	ReceiptKindAcknowledge ReceiptKind = "acknowledge"
)

// Receipt records that a user viewed or acknowledged an announcement.
// The (announcement, user, kind) triple is unique, so receipt sets are
// deduplicated by user id.
type Receipt struct {
	AnnouncementID string      `db:"announcement_id" json:"-"`
	UserID         string      `db:"user_id" json:"user_id"`
	Kind           ReceiptKind `db:"kind" json:"-"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Announcement is a broadcast message targeted at audience segments.
// Everything except the receipt sets is immutable once published.
type Announcement struct {
	ID             string               `db:"id" json:"id"`
	Title          string               `db:"title" json:"title"`
	Message        string               `db:"message" json:"message"`
	Type           AnnouncementType     `db:"type" json:"type"`
	Priority       AnnouncementPriority `db:"priority" json:"priority"`
	TargetAudience []string             `db:"-" json:"target_audience"`
	Status         AnnouncementStatus   `db:"status" json:"status"`
	ActionRequired bool                 `db:"action_required" json:"action_required"`
	ActionURL      *string              `db:"action_url" json:"action_url,omitempty"`
	ActionText     *string              `db:"action_text" json:"action_text,omitempty"`
	CreatedBy      string               `db:"created_by" json:"created_by"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at" json:"updated_at"`
	PublishedAt    *time.Time           `db:"published_at" json:"published_at,omitempty"`
	ExpiresAt      *time.Time           `db:"expires_at" json:"expires_at,omitempty"`

	ViewedBy       []Receipt `db:"-" json:"viewed_by"`
	AcknowledgedBy []Receipt `db:"-" json:"acknowledged_by"`

	// Derived per-user flags, computed from the receipt sets against the
	// requesting user. Never persisted.
	HasViewed       bool `db:"-" json:"has_viewed"`
	HasAcknowledged bool `db:"-" json:"has_acknowledged"`
}

// ViewedByUser reports whether the given user appears in the view receipts.
func (a *Announcement) ViewedByUser(userID string) bool {
	return receiptsContain(a.ViewedBy, userID)
}

// AcknowledgedByUser reports whether the given user appears in the
// acknowledgment receipts.
func (a *Announcement) AcknowledgedByUser(userID string) bool {
	return receiptsContain(a.AcknowledgedBy, userID)
}

func receiptsContain(receipts []Receipt, userID string) bool {
	for _, r := range receipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Normalize coerces unexpected enum values coming off the wire into safe
// defaults so loosely-typed payloads never reach the display sort logic.
// Unknown statuses map to archived, which is never deliverable.
func (a *Announcement) Normalize() {
	switch a.Type {
	case AnnouncementTypeInfo, AnnouncementTypeSuccess, AnnouncementTypeWarning,
		AnnouncementTypeError, AnnouncementTypeMaintenance:
	default:
		a.Type = AnnouncementTypeInfo
	}
	switch a.Priority {
	case AnnouncementPriorityLow, AnnouncementPriorityMedium,
		AnnouncementPriorityHigh, AnnouncementPriorityUrgent:
	default:
		a.Priority = AnnouncementPriorityLow
	}
	switch a.Status {
	case AnnouncementStatusDraft, AnnouncementStatusActive,
		AnnouncementStatusExpired, AnnouncementStatusArchived:
	default:
		a.Status = AnnouncementStatusArchived
	}
}

// AnnouncementFilter narrows admin listings.
type AnnouncementFilter struct {
	Status   *AnnouncementStatus
	Audience string
	Page     int
	PageSize int
}

// MarkViewedResult reports the outcome of an idempotent receipt write.
type MarkViewedResult struct {
	WasAlreadyRecorded bool `json:"was_already_recorded"`
}
