package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

type receipt struct {
	readAt      *time.Time
	dismissedAt *time.Time
}

// MemoryRepository keeps notifications in process memory. It backs
// NOTIFICATION_BACKEND=memory and the tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	notifications map[string]Notification
	receipts      map[string]map[string]*receipt // userID -> notificationID -> receipt
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		notifications: make(map[string]Notification),
		receipts:      make(map[string]map[string]*receipt),
	}
}

func (r *MemoryRepository) CreateNotification(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[n.ID]; ok {
		return ErrDuplicateNotification
	}
	n.IsRead = false
	n.ReadAt = nil
	r.notifications[n.ID] = n
	return nil
}

func (r *MemoryRepository) GetNotification(ctx context.Context, id string) (Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, filter ListFilter) ([]Notification, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.visibleLocked(filter.UserID, filter.Audiences)
	if filter.Type != "" {
		kept := matched[:0]
		for _, n := range matched {
			if n.Type == filter.Type {
				kept = append(kept, n)
			}
		}
		matched = kept
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []Notification{}, total, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}

	page := make([]Notification, 0, end-filter.Offset)
	for _, n := range matched[filter.Offset:end] {
		if rc := r.receipt(filter.UserID, n.ID); rc != nil && rc.readAt != nil {
			readAt := *rc.readAt
			n.IsRead = true
			n.ReadAt = &readAt
		}
		page = append(page, n)
	}

	return page, total, nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string, readAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[notificationID]; !ok {
		return ErrNotificationNotFound
	}
	rc := r.receiptForUpdate(userID, notificationID)
	if rc.readAt == nil {
		rc.readAt = &readAt
	}
	return nil
}

func (r *MemoryRepository) MarkAllNotificationsRead(ctx context.Context, userID string, audiences []string, readAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, n := range r.visibleLocked(userID, audiences) {
		rc := r.receiptForUpdate(userID, n.ID)
		if rc.readAt == nil {
			rc.readAt = &readAt
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryRepository) DismissNotification(ctx context.Context, userID, notificationID string, dismissedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[notificationID]; !ok {
		return ErrNotificationNotFound
	}
	rc := r.receiptForUpdate(userID, notificationID)
	if rc.dismissedAt == nil {
		rc.dismissedAt = &dismissedAt
	}
	return nil
}

func (r *MemoryRepository) CountUnreadNotifications(ctx context.Context, userID string, audiences []string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unread int64
	for _, n := range r.visibleLocked(userID, audiences) {
		if rc := r.receipt(userID, n.ID); rc == nil || rc.readAt == nil {
			unread++
		}
	}
	return unread, nil
}

func (r *MemoryRepository) DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, n := range r.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(r.notifications, id)
			for _, receipts := range r.receipts {
				delete(receipts, id)
			}
			deleted++
		}
	}
	return deleted, nil
}

// visibleLocked returns the notifications addressed to one of audiences that
// the user has not dismissed. Callers hold r.mu.
func (r *MemoryRepository) visibleLocked(userID string, audiences []string) []Notification {
	allowed := make(map[string]bool, len(audiences))
	for _, audience := range audiences {
		allowed[audience] = true
	}

	var out []Notification
	for _, n := range r.notifications {
		if !allowed[n.TargetAudience] {
			continue
		}
		if rc := r.receipt(userID, n.ID); rc != nil && rc.dismissedAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (r *MemoryRepository) receipt(userID, notificationID string) *receipt {
	return r.receipts[userID][notificationID]
}

func (r *MemoryRepository) receiptForUpdate(userID, notificationID string) *receipt {
	receipts, ok := r.receipts[userID]
	if !ok {
		receipts = make(map[string]*receipt)
		r.receipts[userID] = receipts
	}
	rc, ok := receipts[notificationID]
	if !ok {
		rc = &receipt{}
		receipts[notificationID] = rc
	}
	return rc
}
