package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	published []notification.Notification
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, n *notification.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, *n)
	return nil
}

func newPublishTask(t *testing.T, n notification.Notification) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(PayloadPublishNotification{Notification: n})
	require.NoError(t, err)
	return asynq.NewTask(TaskPublishNotification, data)
}

func TestProcessTaskPublishNotification(t *testing.T) {
	publisher := &stubPublisher{}
	processor := &RedisTaskProcessor{publisher: publisher}

	task := newPublishTask(t, notification.Notification{
		ID:             "n-1",
		Title:          "Exam moved",
		Body:           "Thursday 9am",
		TargetAudience: notification.AudienceStudents,
		Priority:       notification.PriorityMedium,
	})

	require.NoError(t, processor.ProcessTaskPublishNotification(context.Background(), task))
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "n-1", publisher.published[0].ID)
	assert.True(t, publisher.published[0].CreatedAt.IsZero())
}

func TestProcessTaskPublishNotificationSkipsRetry(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		processor := &RedisTaskProcessor{publisher: &stubPublisher{}}
		err := processor.ProcessTaskPublishNotification(context.Background(),
			asynq.NewTask(TaskPublishNotification, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("invalid notification", func(t *testing.T) {
		processor := &RedisTaskProcessor{publisher: &stubPublisher{
			err: &notification.ValidationError{Field: "title", Reason: "is required"},
		}}
		err := processor.ProcessTaskPublishNotification(context.Background(),
			newPublishTask(t, notification.Notification{ID: "n-2"}))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("store failure is retried", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		processor := &RedisTaskProcessor{publisher: &stubPublisher{err: storeErr}}
		err := processor.ProcessTaskPublishNotification(context.Background(),
			newPublishTask(t, notification.Notification{ID: "n-3"}))
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}
