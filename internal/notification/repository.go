package notification

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrDuplicateNotification = errors.New("notification already exists")
)

// Repository persists notifications and per-recipient receipts. Notifications
// are append-only; only receipts (read, dismissed) change after creation.
type Repository interface {
	// CreateNotification stores n. It returns ErrDuplicateNotification when
	// a notification with the same ID already exists.
	CreateNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	// ListNotifications returns one page, newest first, excluding notifications
	// the user dismissed, plus the total number of matching rows.
	ListNotifications(ctx context.Context, filter ListFilter) ([]Notification, int64, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, readAt time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, audiences []string, readAt time.Time) (int64, error)
	DismissNotification(ctx context.Context, userID, notificationID string, dismissedAt time.Time) error
	CountUnreadNotifications(ctx context.Context, userID string, audiences []string) (int64, error)
	DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
