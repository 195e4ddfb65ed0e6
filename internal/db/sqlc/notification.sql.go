package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/katatrina/schoolhub-BE/internal/notification"
)

const createNotification = `-- name: CreateNotification :execrows
INSERT INTO notifications (
  id, title, body, type, target_audience, priority, posted_by, posted_by_role, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`

func (q *Queries) CreateNotification(ctx context.Context, n notification.Notification) error {
	result, err := q.db.Exec(ctx, createNotification,
		n.ID,
		n.Title,
		n.Body,
		n.Type,
		n.TargetAudience,
		string(n.Priority),
		n.PostedBy,
		string(n.PostedByRole),
		n.CreatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return notification.ErrDuplicateNotification
	}
	return nil
}

const getNotification = `-- name: GetNotification :one
SELECT id, title, body, type, target_audience, priority, posted_by, posted_by_role, created_at, NULL::timestamptz AS read_at
FROM notifications
WHERE id = $1
`

func (q *Queries) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	row := q.db.QueryRow(ctx, getNotification, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, notification.ErrNotificationNotFound
	}
	return n, err
}

const listNotifications = `-- name: ListNotifications :many
SELECT n.id, n.title, n.body, n.type, n.target_audience, n.priority, n.posted_by, n.posted_by_role, n.created_at, r.read_at
FROM notifications n
LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $1
WHERE n.target_audience = ANY($2::text[])
  AND ($3::text = '' OR n.type = $3)
  AND r.dismissed_at IS NULL
ORDER BY n.created_at DESC, n.id DESC
LIMIT $4 OFFSET $5
`

const countNotifications = `-- name: CountNotifications :one
SELECT COUNT(*)
FROM notifications n
LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $1
WHERE n.target_audience = ANY($2::text[])
  AND ($3::text = '' OR n.type = $3)
  AND r.dismissed_at IS NULL
`

func (q *Queries) ListNotifications(ctx context.Context, filter notification.ListFilter) ([]notification.Notification, int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, countNotifications, filter.UserID, filter.Audiences, filter.Type).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := q.db.Query(ctx, listNotifications,
		filter.UserID,
		filter.Audiences,
		filter.Type,
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

const markNotificationRead = `-- name: MarkNotificationRead :exec
INSERT INTO notification_receipts (user_id, notification_id, read_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, notification_id) DO UPDATE
SET read_at = COALESCE(notification_receipts.read_at, EXCLUDED.read_at)
`

func (q *Queries) MarkNotificationRead(ctx context.Context, userID, notificationID string, readAt time.Time) error {
	_, err := q.db.Exec(ctx, markNotificationRead, userID, notificationID, readAt)
	if code, _ := ErrorDescription(err); code == ForeignKeyViolationCode {
		return notification.ErrNotificationNotFound
	}
	return err
}

const markAllNotificationsRead = `-- name: MarkAllNotificationsRead :execrows
INSERT INTO notification_receipts (user_id, notification_id, read_at)
SELECT $1, n.id, $3
FROM notifications n
LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $1
WHERE n.target_audience = ANY($2::text[])
  AND r.read_at IS NULL
  AND r.dismissed_at IS NULL
ON CONFLICT (user_id, notification_id) DO UPDATE
SET read_at = EXCLUDED.read_at
WHERE notification_receipts.read_at IS NULL
`

func (q *Queries) MarkAllNotificationsRead(ctx context.Context, userID string, audiences []string, readAt time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, markAllNotificationsRead, userID, audiences, readAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const dismissNotification = `-- name: DismissNotification :exec
INSERT INTO notification_receipts (user_id, notification_id, dismissed_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, notification_id) DO UPDATE
SET dismissed_at = COALESCE(notification_receipts.dismissed_at, EXCLUDED.dismissed_at)
`

func (q *Queries) DismissNotification(ctx context.Context, userID, notificationID string, dismissedAt time.Time) error {
	_, err := q.db.Exec(ctx, dismissNotification, userID, notificationID, dismissedAt)
	if code, _ := ErrorDescription(err); code == ForeignKeyViolationCode {
		return notification.ErrNotificationNotFound
	}
	return err
}

const countUnreadNotifications = `-- name: CountUnreadNotifications :one
SELECT COUNT(*)
FROM notifications n
LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $1
WHERE n.target_audience = ANY($2::text[])
  AND r.read_at IS NULL
  AND r.dismissed_at IS NULL
`

func (q *Queries) CountUnreadNotifications(ctx context.Context, userID string, audiences []string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUnreadNotifications, userID, audiences).Scan(&count)
	return count, err
}

const deleteNotificationsCreatedBefore = `-- name: DeleteNotificationsCreatedBefore :execrows
DELETE FROM notifications
WHERE created_at < $1
`

func (q *Queries) DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteNotificationsCreatedBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func scanNotification(row rowScanner) (notification.Notification, error) {
	var (
		n        notification.Notification
		priority string
		role     string
		readAt   *time.Time
	)
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Body,
		&n.Type,
		&n.TargetAudience,
		&priority,
		&n.PostedBy,
		&role,
		&n.CreatedAt,
		&readAt,
	)
	n.Priority = notification.Priority(priority)
	n.PostedByRole = notification.Role(role)
	n.CreatedAt = n.CreatedAt.UTC()
	if readAt != nil {
		t := readAt.UTC()
		n.ReadAt = &t
		n.IsRead = true
	}
	return n, err
}
