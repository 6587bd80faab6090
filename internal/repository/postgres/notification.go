package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dispatchlab/notification-service/internal/domain"
)

const notificationColumns = `id, user_id, channel, priority, subject, content, status,
	retry_count, max_retries, next_retry_at, error_message, template_name,
	version, created_at, updated_at, sent_at, delivered_at, read_at`

// NotificationRepository implements domain.NotificationRepository using PostgreSQL
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert writes a new notification row. The row starts at version 0.
func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, channel, priority, subject, content, status,
			retry_count, max_retries, next_retry_at, error_message, template_name,
			version, created_at, updated_at, sent_at, delivered_at, read_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Channel, n.Priority, n.Subject, n.Content, n.Status,
		n.RetryCount, n.MaxRetries, n.NextRetryAt, n.ErrorMessage, n.TemplateName,
		n.Version, n.CreatedAt, n.UpdatedAt, n.SentAt, n.DeliveredAt, n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// FindByID retrieves a notification by ID
func (r *NotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	return r.scanNotification(ctx, query, id)
}

// Update performs a full-row update guarded by the version column.
// id and channel are deliberately excluded from the SET list: both are
// immutable after insert. Returns domain.ErrVersionConflict when another
// writer advanced the row first.
func (r *NotificationRepository) Update(ctx context.Context, n *domain.Notification) error {
	query := `
		UPDATE notifications SET
			priority = $3, subject = $4, content = $5, status = $6,
			retry_count = $7, max_retries = $8, next_retry_at = $9,
			error_message = $10, template_name = $11, version = version + 1,
			updated_at = $12, sent_at = $13, delivered_at = $14, read_at = $15
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.Pool.Exec(ctx, query,
		n.ID, n.Version,
		n.Priority, n.Subject, n.Content, n.Status,
		n.RetryCount, n.MaxRetries, n.NextRetryAt,
		n.ErrorMessage, n.TemplateName,
		n.UpdatedAt, n.SentAt, n.DeliveredAt, n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		exists, err := r.exists(ctx, n.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}

	n.Version++
	return nil
}

// ListForUser returns a user's notifications, newest first, optionally
// filtered by status.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, status *domain.Status, page, pageSize int) (*domain.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	where := "user_id = $1"
	args := []any{userID}
	if status != nil {
		where += " AND status = $2"
		args = append(args, *status)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notifications WHERE %s", where)
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, notificationColumns, where, len(args)+1, len(args)+2)

	args = append(args, pageSize, offset)
	notifications, err := r.scanNotifications(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &domain.NotificationPage{
		Notifications: notifications,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
	}, nil
}

// FindReadyForRetry selects pending rows due for (re-)publication. The
// comparison is inclusive: next_retry_at = now is eligible.
func (r *NotificationRepository) FindReadyForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, notificationColumns)

	return r.scanNotifications(ctx, query, now, limit)
}

// FindStuckProcessing selects rows stranded in PROCESSING since before
// olderThan, e.g. by a worker crash between lease and handler call.
func (r *NotificationRepository) FindStuckProcessing(ctx context.Context, olderThan time.Time) ([]*domain.Notification, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC
	`, notificationColumns)

	return r.scanNotifications(ctx, query, olderThan)
}

// Helper functions

func (r *NotificationRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notification existence: %w", err)
	}
	return exists, nil
}

func (r *NotificationRepository) scanNotification(ctx context.Context, query string, args ...any) (*domain.Notification, error) {
	row := r.db.Pool.QueryRow(ctx, query, args...)

	n := &domain.Notification{}
	err := row.Scan(
		&n.ID, &n.UserID, &n.Channel, &n.Priority, &n.Subject, &n.Content, &n.Status,
		&n.RetryCount, &n.MaxRetries, &n.NextRetryAt, &n.ErrorMessage, &n.TemplateName,
		&n.Version, &n.CreatedAt, &n.UpdatedAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	return n, nil
}

func (r *NotificationRepository) scanNotifications(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		n := &domain.Notification{}
		err := rows.Scan(
			&n.ID, &n.UserID, &n.Channel, &n.Priority, &n.Subject, &n.Content, &n.Status,
			&n.RetryCount, &n.MaxRetries, &n.NextRetryAt, &n.ErrorMessage, &n.TemplateName,
			&n.Version, &n.CreatedAt, &n.UpdatedAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}
