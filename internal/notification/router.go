package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	mirrorTimeout = 10 * time.Second
)

// Broadcaster pushes an event to every connection subscribed to its room.
type Broadcaster interface {
	Broadcast(event event.Event)
}

// Mirror copies a notification to an out-of-band channel (e.g. a staff chat).
type Mirror interface {
	Mirror(ctx context.Context, n Notification) error
}

// ValidationError reports which field of a notification is unacceptable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Router stores new notifications and fans them out to the rooms of their audience.
type Router struct {
	repo        Repository
	broadcaster Broadcaster
	mirror      Mirror
	now         func() time.Time
}

type RouterOption func(*Router)

// WithMirror copies high-priority notifications to m after they are published.
func WithMirror(m Mirror) RouterOption {
	return func(r *Router) {
		r.mirror = m
	}
}

// WithClock overrides the time source used for CreatedAt and receipts.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
	}
}

func NewRouter(repo Repository, broadcaster Broadcaster, opts ...RouterOption) *Router {
	r := &Router{
		repo:        repo,
		broadcaster: broadcaster,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish persists n and pushes it to the room computed from its audience.
// Missing ID and CreatedAt are filled in on n. Publishing an ID that already
// exists is a no-op, which makes retried publish tasks safe.
func (r *Router) Publish(ctx context.Context, n *Notification) error {
	if err := Prepare(n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	n.IsRead = false
	n.ReadAt = nil

	err := r.repo.CreateNotification(ctx, *n)
	if errors.Is(err, ErrDuplicateNotification) {
		log.Info().Str("notification_id", n.ID).Msg("notification already published, skipping fan-out")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	room := RoomFor(n.TargetAudience)
	r.broadcaster.Broadcast(event.Event{
		Room:     room,
		Type:     event.TypeNotification,
		ID:       n.ID,
		Audience: n.TargetAudience,
		Payload:  payload,
	})

	log.Info().Str("notification_id", n.ID).Str("room", room).
		Str("priority", string(n.Priority)).Msg("notification published")

	if r.mirror != nil && n.Priority == PriorityHigh {
		mirrored := *n
		go func() {
			mirrorCtx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
			defer cancel()

			if err := r.mirror.Mirror(mirrorCtx, mirrored); err != nil {
				log.Warn().Err(err).Str("notification_id", mirrored.ID).Msg("failed to mirror notification")
			}
		}()
	}

	return nil
}

// ListForUser returns one page of notifications visible to the user, newest first.
func (r *Router) ListForUser(ctx context.Context, userID string, role Role, params ListParams) (Page, error) {
	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	result := Page{Items: []Notification{}, CurrentPage: page}

	audiences := VisibleAudiences(role, userID)
	if len(audiences) == 0 {
		return result, nil
	}

	items, total, err := r.repo.ListNotifications(ctx, ListFilter{
		UserID:    userID,
		Audiences: audiences,
		Type:      params.Type,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		return result, fmt.Errorf("failed to list notifications: %w", err)
	}

	for _, n := range items {
		if CanView(role, userID, n.TargetAudience) {
			result.Items = append(result.Items, n)
		}
	}
	result.Total = total
	result.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))

	return result, nil
}

// MarkRead records that the user has read the notification.
func (r *Router) MarkRead(ctx context.Context, userID string, role Role, notificationID string) error {
	if _, err := r.visible(ctx, userID, role, notificationID); err != nil {
		return err
	}
	return r.repo.MarkNotificationRead(ctx, userID, notificationID, r.now().UTC())
}

// MarkAllRead marks every notification visible to the user as read and
// returns how many changed.
func (r *Router) MarkAllRead(ctx context.Context, userID string, role Role) (int64, error) {
	audiences := VisibleAudiences(role, userID)
	if len(audiences) == 0 {
		return 0, nil
	}
	return r.repo.MarkAllNotificationsRead(ctx, userID, audiences, r.now().UTC())
}

// Dismiss hides the notification from the user's feed. The notification itself is kept.
func (r *Router) Dismiss(ctx context.Context, userID string, role Role, notificationID string) error {
	if _, err := r.visible(ctx, userID, role, notificationID); err != nil {
		return err
	}
	return r.repo.DismissNotification(ctx, userID, notificationID, r.now().UTC())
}

func (r *Router) UnreadCount(ctx context.Context, userID string, role Role) (int64, error) {
	audiences := VisibleAudiences(role, userID)
	if len(audiences) == 0 {
		return 0, nil
	}
	return r.repo.CountUnreadNotifications(ctx, userID, audiences)
}

// PurgeCreatedBefore deletes notifications older than cutoff.
func (r *Router) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.repo.DeleteNotificationsCreatedBefore(ctx, cutoff)
}

// visible loads a notification and hides it behind ErrNotificationNotFound
// when the user is outside its audience.
func (r *Router) visible(ctx context.Context, userID string, role Role, notificationID string) (Notification, error) {
	n, err := r.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return n, err
	}
	if !CanView(role, userID, n.TargetAudience) {
		return Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

// Prepare normalizes n in place and validates it. Publish calls it; callers
// that hold a notification back for later can call it up front.
func Prepare(n *Notification) error {
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	n.TargetAudience = NormalizeAudience(n.TargetAudience)

	if n.Type == "" {
		n.Type = TypeGeneral
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}

	switch {
	case n.Title == "":
		return &ValidationError{Field: "title", Reason: "is required"}
	case len(n.Title) > 200:
		return &ValidationError{Field: "title", Reason: "must be at most 200 characters"}
	case n.Body == "":
		return &ValidationError{Field: "body", Reason: "is required"}
	case n.TargetAudience == "":
		return &ValidationError{Field: "target_audience", Reason: "is required"}
	case !n.Priority.Valid():
		return &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	case n.PostedByRole != "" && !n.PostedByRole.Valid():
		return &ValidationError{Field: "posted_by_role", Reason: "is not a known role"}
	}

	return nil
}

// SubscriberCanView is the hub's visibility filter: events without an
// audience pass, notification events go through CanView.
func SubscriberCanView(sub *event.Subscriber, ev event.Event) bool {
	if ev.Audience == "" {
		return true
	}
	return CanView(Role(sub.Role), sub.UserID, ev.Audience)
}
