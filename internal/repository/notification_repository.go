package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/demandes-api/internal/models"
)

const notificationColumns = `id, recipient_id, demande_id, type, message, read, created_at, read_at`

// NotificationRepository stores inbox entries.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts one row per recipient in a single transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, items []models.Notification) (err error) {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notifications: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO notifications (id, recipient_id, demande_id, type, message, read, created_at)
VALUES (:id, :recipient_id, :demande_id, :type, :message, :read, :created_at)`
	now := time.Now().UTC()
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, query, item); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit notifications: %w", err)
	}
	return nil
}

// List returns a recipient's inbox, newest first, with the total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := " WHERE recipient_id = $1"
	if filter.UnreadOnly {
		where += " AND read = FALSE"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM notifications%s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, where, limit, offset)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, filter.RecipientID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM notifications"+where, filter.RecipientID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags a recipient's notification as read. Marking twice is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*models.Notification, error) {
	if malformedID(id) {
		return nil, sql.ErrNoRows
	}
	query := `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3)
WHERE id = $1 AND recipient_id = $2
RETURNING ` + notificationColumns
	var item models.Notification
	if err := r.db.GetContext(ctx, &item, query, id, recipientID, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return &item, nil
}
