package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dealerhub/announce-api/internal/models"
)

const announcementColumns = `id, title, message, type, priority, target_audience, status,
action_required, action_url, action_text, created_by, created_at, updated_at, published_at, expires_at`

// announcementRow mirrors the announcements table; target_audience needs a
// pq array wrapper before it becomes the model's []string.
type announcementRow struct {
	ID             string                      `db:"id"`
	Title          string                      `db:"title"`
	Message        string                      `db:"message"`
	Type           models.AnnouncementType     `db:"type"`
	Priority       models.AnnouncementPriority `db:"priority"`
	TargetAudience pq.StringArray              `db:"target_audience"`
	Status         models.AnnouncementStatus   `db:"status"`
	ActionRequired bool                        `db:"action_required"`
	ActionURL      *string                     `db:"action_url"`
	ActionText     *string                     `db:"action_text"`
	CreatedBy      string                      `db:"created_by"`
	CreatedAt      time.Time                   `db:"created_at"`
	UpdatedAt      time.Time                   `db:"updated_at"`
	PublishedAt    *time.Time                  `db:"published_at"`
	ExpiresAt      *time.Time                  `db:"expires_at"`
}

func (r announcementRow) toModel() models.Announcement {
	return models.Announcement{
		ID:             r.ID,
		Title:          r.Title,
		Message:        r.Message,
		Type:           r.Type,
		Priority:       r.Priority,
		TargetAudience: []string(r.TargetAudience),
		Status:         r.Status,
		ActionRequired: r.ActionRequired,
		ActionURL:      r.ActionURL,
		ActionText:     r.ActionText,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		PublishedAt:    r.PublishedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

// AnnouncementRepository provides persistence for announcements and their
// view/acknowledgment receipts.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// deliverableWhere restricts rows to announcements that may be shown to end
// users: active, published, not expired, targeted at the caller's audience.
const deliverableWhere = `status = 'active'
AND (published_at IS NULL OR published_at <= NOW())
AND (expires_at IS NULL OR expires_at > NOW())
AND target_audience && $1`

// ListActiveFor returns deliverable announcements for the audience tag with
// receipt sets attached.
func (r *AnnouncementRepository) ListActiveFor(ctx context.Context, audience string) ([]models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE %s ORDER BY created_at DESC`, announcementColumns, deliverableWhere)
	var rows []announcementRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(audienceTags(audience))); err != nil {
		return nil, fmt.Errorf("list active announcements: %w", err)
	}
	announcements := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toModel())
	}
	if err := r.attachReceipts(ctx, announcements); err != nil {
		return nil, err
	}
	return announcements, nil
}

// ListUnreadFor returns deliverable announcements with no view receipt for
// the user.
func (r *AnnouncementRepository) ListUnreadFor(ctx context.Context, audience, userID string) ([]models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements a WHERE %s
AND NOT EXISTS (
	SELECT 1 FROM announcement_receipts rc
	WHERE rc.announcement_id = a.id AND rc.user_id = $2 AND rc.kind = 'view'
)
ORDER BY created_at DESC`, announcementColumns, deliverableWhere)
	var rows []announcementRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(audienceTags(audience)), userID); err != nil {
		return nil, fmt.Errorf("list unread announcements: %w", err)
	}
	announcements := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toModel())
	}
	if err := r.attachReceipts(ctx, announcements); err != nil {
		return nil, err
	}
	return announcements, nil
}

// GetByID returns an announcement with receipts by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE id = $1`, announcementColumns)
	var row announcementRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	announcement := row.toModel()
	out := []models.Announcement{announcement}
	if err := r.attachReceipts(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// List returns announcements for the admin listing with pagination.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.Audience != "" {
		where = append(where, fmt.Sprintf("target_audience && $%d", len(args)+1))
		args = append(args, pq.Array([]string{filter.Audience}))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		announcementColumns, whereClause, size, offset)
	var rows []announcementRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	announcements := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toModel())
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now
	const query = `INSERT INTO announcements (id, title, message, type, priority, target_audience, status,
action_required, action_url, action_text, created_by, created_at, updated_at, published_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	if _, err := r.db.ExecContext(ctx, query,
		announcement.ID, announcement.Title, announcement.Message,
		string(announcement.Type), string(announcement.Priority),
		pq.Array(announcement.TargetAudience), string(announcement.Status),
		announcement.ActionRequired, announcement.ActionURL, announcement.ActionText,
		announcement.CreatedBy, announcement.CreatedAt, announcement.UpdatedAt,
		announcement.PublishedAt, announcement.ExpiresAt,
	); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update modifies an existing announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = $2, message = $3, type = $4, priority = $5,
target_audience = $6, action_required = $7, action_url = $8, action_text = $9,
published_at = $10, expires_at = $11, updated_at = $12
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		announcement.ID, announcement.Title, announcement.Message,
		string(announcement.Type), string(announcement.Priority),
		pq.Array(announcement.TargetAudience),
		announcement.ActionRequired, announcement.ActionURL, announcement.ActionText,
		announcement.PublishedAt, announcement.ExpiresAt, announcement.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// UpdateStatus moves an announcement through its lifecycle.
func (r *AnnouncementRepository) UpdateStatus(ctx context.Context, id string, status models.AnnouncementStatus, publishedAt *time.Time) error {
	const query = `UPDATE announcements SET status = $2, published_at = COALESCE($3, published_at), updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), publishedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update announcement status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an announcement and its receipts.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM announcement_receipts WHERE announcement_id = $1", id); err != nil {
		return fmt.Errorf("delete announcement receipts: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

// MarkReceipt records a receipt once per (announcement, user, kind). It
// returns true when the receipt already existed, making repeated marks
// harmless.
func (r *AnnouncementRepository) MarkReceipt(ctx context.Context, announcementID, userID string, kind models.ReceiptKind) (alreadyRecorded bool, err error) {
	const query = `INSERT INTO announcement_receipts (announcement_id, user_id, kind, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (announcement_id, user_id, kind) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, announcementID, userID, string(kind), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark receipt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark receipt result: %w", err)
	}
	return affected == 0, nil
}

// EngagementSummary aggregates receipt counts per announcement for reports.
func (r *AnnouncementRepository) EngagementSummary(ctx context.Context, audience string, since *time.Time) ([]models.EngagementRow, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if audience != "" {
		where = append(where, fmt.Sprintf("a.target_audience && $%d", len(args)+1))
		args = append(args, pq.Array([]string{audience}))
	}
	if since != nil {
		where = append(where, fmt.Sprintf("a.created_at >= $%d", len(args)+1))
		args = append(args, *since)
	}
	query := fmt.Sprintf(`SELECT a.id, a.title, a.priority, a.status, a.published_at,
COUNT(*) FILTER (WHERE rc.kind = 'view') AS view_count,
COUNT(*) FILTER (WHERE rc.kind = 'acknowledge') AS ack_count
FROM announcements a
LEFT JOIN announcement_receipts rc ON rc.announcement_id = a.id
WHERE %s
GROUP BY a.id, a.title, a.priority, a.status, a.published_at
ORDER BY a.created_at DESC`, strings.Join(where, " AND "))
	var rows []models.EngagementRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("engagement summary: %w", err)
	}
	return rows, nil
}

func (r *AnnouncementRepository) attachReceipts(ctx context.Context, announcements []models.Announcement) error {
	if len(announcements) == 0 {
		return nil
	}
	ids := make([]string, len(announcements))
	index := make(map[string]int, len(announcements))
	for i := range announcements {
		ids[i] = announcements[i].ID
		index[announcements[i].ID] = i
	}
	const query = `SELECT announcement_id, user_id, kind, created_at
FROM announcement_receipts WHERE announcement_id = ANY($1)`
	var receipts []models.Receipt
	if err := r.db.SelectContext(ctx, &receipts, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load receipts: %w", err)
	}
	for _, receipt := range receipts {
		i, ok := index[receipt.AnnouncementID]
		if !ok {
			continue
		}
		switch receipt.Kind {
		case models.ReceiptKindView:
			announcements[i].ViewedBy = append(announcements[i].ViewedBy, receipt)
		case models.ReceiptKindAcknowledge:
			announcements[i].AcknowledgedBy = append(announcements[i].AcknowledgedBy, receipt)
		}
	}
	return nil
}

// audienceTags expands a caller's tag with the implicit "all" segment.
func audienceTags(audience string) []string {
	if audience == "" || audience == models.AudienceAll {
		return []string{models.AudienceAll}
	}
	return []string{models.AudienceAll, audience}
}
