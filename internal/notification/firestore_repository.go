package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	notificationsCollection = "notifications"
	receiptsCollection      = "notification_receipts"
)

type firestoreReceipt struct {
	UserID         string     `firestore:"userId"`
	NotificationID string     `firestore:"notificationId"`
	ReadAt         *time.Time `firestore:"readAt"`
	DismissedAt    *time.Time `firestore:"dismissedAt"`
}

// FirestoreRepository stores notifications as documents keyed by ID and
// per-recipient receipts in a sibling collection.
type FirestoreRepository struct {
	client *firestore.Client
}

func NewFirestoreRepository(ctx context.Context, firebaseApp *firebase.App) (*FirestoreRepository, error) {
	// Initialize Firestore client
	firestoreClient, err := firebaseApp.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreRepository{
		client: firestoreClient,
	}, nil
}

func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

func (r *FirestoreRepository) CreateNotification(ctx context.Context, n Notification) error {
	_, err := r.client.Collection(notificationsCollection).Doc(n.ID).Create(ctx, n)
	if status.Code(err) == codes.AlreadyExists {
		return ErrDuplicateNotification
	}
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to create notification document")
		return err
	}
	return nil
}

func (r *FirestoreRepository) GetNotification(ctx context.Context, id string) (Notification, error) {
	var n Notification

	doc, err := r.client.Collection(notificationsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return n, ErrNotificationNotFound
	}
	if err != nil {
		return n, err
	}

	err = doc.DataTo(&n)
	return n, err
}

func (r *FirestoreRepository) ListNotifications(ctx context.Context, filter ListFilter) ([]Notification, int64, error) {
	visible, err := r.visible(ctx, filter.UserID, filter.Audiences, filter.Type)
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(visible))
	items := []Notification{}
	for i := filter.Offset; i < len(visible); i++ {
		if filter.Limit > 0 && len(items) == filter.Limit {
			break
		}
		items = append(items, visible[i].Notification)
		if rc := visible[i].receipt; rc != nil && rc.ReadAt != nil {
			items[len(items)-1].IsRead = true
			items[len(items)-1].ReadAt = rc.ReadAt
		}
	}

	return items, total, nil
}

func (r *FirestoreRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string, readAt time.Time) error {
	rc, err := r.receipt(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if rc != nil && rc.ReadAt != nil {
		return nil
	}

	_, err = r.receiptRef(userID, notificationID).Set(ctx, map[string]interface{}{
		"userId":         userID,
		"notificationId": notificationID,
		"readAt":         readAt,
	}, firestore.MergeAll)
	return err
}

func (r *FirestoreRepository) MarkAllNotificationsRead(ctx context.Context, userID string, audiences []string, readAt time.Time) (int64, error) {
	visible, err := r.visible(ctx, userID, audiences, "")
	if err != nil {
		return 0, err
	}

	writer := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for _, v := range visible {
		if v.receipt != nil && v.receipt.ReadAt != nil {
			continue
		}
		job, err := writer.Set(r.receiptRef(userID, v.ID), map[string]interface{}{
			"userId":         userID,
			"notificationId": v.ID,
			"readAt":         readAt,
		}, firestore.MergeAll)
		if err != nil {
			writer.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	writer.End()

	return int64(len(jobs)), firstJobError(jobs)
}

func (r *FirestoreRepository) DismissNotification(ctx context.Context, userID, notificationID string, dismissedAt time.Time) error {
	_, err := r.receiptRef(userID, notificationID).Set(ctx, map[string]interface{}{
		"userId":         userID,
		"notificationId": notificationID,
		"dismissedAt":    dismissedAt,
	}, firestore.MergeAll)
	return err
}

func (r *FirestoreRepository) CountUnreadNotifications(ctx context.Context, userID string, audiences []string) (int64, error) {
	visible, err := r.visible(ctx, userID, audiences, "")
	if err != nil {
		return 0, err
	}

	var unread int64
	for _, v := range visible {
		if v.receipt == nil || v.receipt.ReadAt == nil {
			unread++
		}
	}
	return unread, nil
}

func (r *FirestoreRepository) DeleteNotificationsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	docs, err := r.client.Collection(notificationsCollection).
		Where("createdAt", "<", cutoff).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}

	writer := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := writer.Delete(doc.Ref)
		if err != nil {
			writer.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	writer.End()

	// Receipts of purged notifications are orphaned and ignored by visible().
	return int64(len(jobs)), firstJobError(jobs)
}

type visibleNotification struct {
	Notification
	receipt *firestoreReceipt
}

// visible returns the user's notifications for audiences, newest first,
// without the ones the user dismissed. Dismissals live in receipts, so the
// window is cut in memory; the retention janitor keeps the collection small.
func (r *FirestoreRepository) visible(ctx context.Context, userID string, audiences []string, notificationType string) ([]visibleNotification, error) {
	receipts, err := r.receipts(ctx, userID)
	if err != nil {
		return nil, err
	}

	query := r.client.Collection(notificationsCollection).Where("targetAudience", "in", audiences)
	if notificationType != "" {
		query = query.Where("type", "==", notificationType)
	}
	docs, err := query.OrderBy("createdAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	out := make([]visibleNotification, 0, len(docs))
	for _, doc := range docs {
		var n Notification
		if err := doc.DataTo(&n); err != nil {
			return nil, err
		}
		rc := receipts[n.ID]
		if rc != nil && rc.DismissedAt != nil {
			continue
		}
		out = append(out, visibleNotification{Notification: n, receipt: rc})
	}
	return out, nil
}

func (r *FirestoreRepository) receipts(ctx context.Context, userID string) (map[string]*firestoreReceipt, error) {
	docs, err := r.client.Collection(receiptsCollection).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	receipts := make(map[string]*firestoreReceipt, len(docs))
	for _, doc := range docs {
		rc := new(firestoreReceipt)
		if err := doc.DataTo(rc); err != nil {
			return nil, err
		}
		receipts[rc.NotificationID] = rc
	}
	return receipts, nil
}

func (r *FirestoreRepository) receipt(ctx context.Context, userID, notificationID string) (*firestoreReceipt, error) {
	if _, err := r.GetNotification(ctx, notificationID); err != nil {
		return nil, err
	}

	doc, err := r.receiptRef(userID, notificationID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rc := new(firestoreReceipt)
	err = doc.DataTo(rc)
	return rc, err
}

func (r *FirestoreRepository) receiptRef(userID, notificationID string) *firestore.DocumentRef {
	return r.client.Collection(receiptsCollection).Doc(fmt.Sprintf("%s_%s", userID, notificationID))
}

func firstJobError(jobs []*firestore.BulkWriterJob) error {
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
