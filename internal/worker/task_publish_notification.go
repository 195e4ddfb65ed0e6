package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/rs/zerolog/log"
)

// PayloadPublishNotification is a notification held back until its publish time.
// CreatedAt is left empty so the notification is stamped when it goes out.
type PayloadPublishNotification struct {
	Notification notification.Notification `json:"notification"`
}

// DistributeTaskPublishNotification enqueues the notification under its own ID,
// so a second enqueue of the same notification is rejected by asynq.
func (distributor *RedisTaskDistributor) DistributeTaskPublishNotification(
	ctx context.Context,
	payload *PayloadPublishNotification,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	taskID := payload.Notification.ID
	task := asynq.NewTask(TaskPublishNotification, jsonPayload, append(opts, asynq.TaskID(taskID))...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().
		Str("type", task.Type()).
		Str("task_id", taskID).
		Str("queue", info.Queue).
		Time("process_at", info.NextProcessAt).
		Int("max_retry", info.MaxRetry).
		Msg("notification publish task scheduled")

	return nil
}

// ProcessTaskPublishNotification publishes a scheduled notification. Publishing
// is idempotent on the notification ID, so a retried task never fans out twice.
func (processor *RedisTaskProcessor) ProcessTaskPublishNotification(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadPublishNotification
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	n := payload.Notification
	if err := processor.publisher.Publish(ctx, &n); err != nil {
		var validationErr *notification.ValidationError
		if errors.As(err, &validationErr) {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("dropping invalid scheduled notification")
			return fmt.Errorf("invalid notification %s: %w", n.ID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}

	log.Info().Str("type", task.Type()).
		Str("notification_id", n.ID).
		Str("audience", n.TargetAudience).
		Msg("task processed")

	return nil
}
