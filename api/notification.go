package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/validator"
	"github.com/katatrina/schoolhub-BE/internal/worker"
	"github.com/rs/zerolog/log"
)

const (
	maxScheduleHorizon  = 30 * 24 * time.Hour
	publishTaskMaxRetry = 5
	scheduleGraceWindow = time.Second
)

type listNotificationsQuery struct {
	Type  string `form:"type"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

func (server *Server) listNotifications(ctx *gin.Context) {
	query := new(listNotificationsQuery)
	if err := ctx.ShouldBindQuery(query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	authPayload := authPayloadFrom(ctx)
	page, err := server.notifications.ListForUser(ctx, authPayload.Subject, notification.Role(authPayload.Role), notification.ListParams{
		Type:     query.Type,
		Page:     query.Page,
		PageSize: query.Limit,
	})
	if err != nil {
		log.Err(err).Str("user_id", authPayload.Subject).Msg("failed to list notifications")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, page)
}

type createNotificationRequest struct {
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Type           string     `json:"type"`
	TargetAudience string     `json:"target_audience"`
	Priority       string     `json:"priority"`
	PublishAt      *time.Time `json:"publish_at"`
}

type scheduledNotificationResponse struct {
	ID        string    `json:"id"`
	PublishAt time.Time `json:"publish_at"`
}

// createNotification publishes immediately, or hands the notification to the
// task queue when publish_at lies in the future.
func (server *Server) createNotification(ctx *gin.Context) {
	req := new(createNotificationRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	authPayload := authPayloadFrom(ctx)
	n := &notification.Notification{
		Title:          req.Title,
		Body:           req.Body,
		Type:           req.Type,
		TargetAudience: req.TargetAudience,
		Priority:       notification.Priority(req.Priority),
		PostedBy:       authPayload.Subject,
		PostedByRole:   notification.Role(authPayload.Role),
	}

	now := time.Now()
	if req.PublishAt != nil && req.PublishAt.After(now.Add(scheduleGraceWindow)) {
		server.scheduleNotification(ctx, n, *req.PublishAt, now)
		return
	}

	err := server.notifications.Publish(ctx, n)
	if err != nil {
		var validationErr *notification.ValidationError
		if errors.As(err, &validationErr) {
			ctx.JSON(http.StatusUnprocessableEntity, failedValidationError([]*FieldViolation{
				fieldViolation(validationErr.Field, errors.New(validationErr.Reason)),
			}))
			return
		}

		log.Err(err).Str("user_id", authPayload.Subject).Msg("failed to publish notification")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusCreated, n)
}

func (server *Server) scheduleNotification(ctx *gin.Context, n *notification.Notification, publishAt, now time.Time) {
	if server.taskDistributor == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(ErrSchedulingUnavailable))
		return
	}

	var violations []*FieldViolation
	if err := validator.ValidatePublishAt(publishAt, now, maxScheduleHorizon); err != nil {
		violations = append(violations, fieldViolation("publish_at", err))
	}
	var validationErr *notification.ValidationError
	if err := notification.Prepare(n); errors.As(err, &validationErr) {
		violations = append(violations, fieldViolation(validationErr.Field, errors.New(validationErr.Reason)))
	}
	if violations != nil {
		ctx.JSON(http.StatusUnprocessableEntity, failedValidationError(violations))
		return
	}

	n.ID = uuid.NewString()
	payload := &worker.PayloadPublishNotification{Notification: *n}
	err := server.taskDistributor.DistributeTaskPublishNotification(ctx, payload,
		asynq.ProcessAt(publishAt),
		asynq.Queue(worker.QueueDefault),
		asynq.MaxRetry(publishTaskMaxRetry),
	)
	if err != nil {
		log.Err(err).Str("notification_id", n.ID).Msg("failed to schedule notification")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusAccepted, scheduledNotificationResponse{ID: n.ID, PublishAt: publishAt.UTC()})
}

func (server *Server) cancelScheduledNotification(ctx *gin.Context) {
	if server.taskInspector == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(ErrSchedulingUnavailable))
		return
	}

	notificationID := ctx.Param("id")
	err := server.taskInspector.DeleteTask(ctx, worker.QueueDefault, notificationID)
	if err != nil {
		if errors.Is(err, worker.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse(err))
			return
		}

		log.Err(err).Str("notification_id", notificationID).Msg("failed to cancel scheduled notification")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (server *Server) markNotificationRead(ctx *gin.Context) {
	authPayload := authPayloadFrom(ctx)
	notificationID := ctx.Param("id")

	err := server.notifications.MarkRead(ctx, authPayload.Subject, notification.Role(authPayload.Role), notificationID)
	if err != nil {
		server.notificationError(ctx, err, notificationID)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (server *Server) markAllNotificationsRead(ctx *gin.Context) {
	authPayload := authPayloadFrom(ctx)

	updated, err := server.notifications.MarkAllRead(ctx, authPayload.Subject, notification.Role(authPayload.Role))
	if err != nil {
		log.Err(err).Str("user_id", authPayload.Subject).Msg("failed to mark all notifications read")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"updated": updated})
}

// dismissNotification removes the notification from the caller's feed only.
func (server *Server) dismissNotification(ctx *gin.Context) {
	authPayload := authPayloadFrom(ctx)
	notificationID := ctx.Param("id")

	err := server.notifications.Dismiss(ctx, authPayload.Subject, notification.Role(authPayload.Role), notificationID)
	if err != nil {
		server.notificationError(ctx, err, notificationID)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (server *Server) getUnreadNotificationCount(ctx *gin.Context) {
	authPayload := authPayloadFrom(ctx)

	count, err := server.notifications.UnreadCount(ctx, authPayload.Subject, notification.Role(authPayload.Role))
	if err != nil {
		log.Err(err).Str("user_id", authPayload.Subject).Msg("failed to count unread notifications")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (server *Server) notificationError(ctx *gin.Context, err error, notificationID string) {
	if errors.Is(err, notification.ErrNotificationNotFound) {
		ctx.JSON(http.StatusNotFound, errorResponse(err))
		return
	}

	log.Err(err).Str("notification_id", notificationID).Msg("failed to update notification receipt")
	ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
}
