// ABOUTME: Asynq-backed Notifier that enqueues push tasks onto Redis
// ABOUTME: The external push worker consumes the queue and talks to APNs/FCM

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskNewMessage is the task type the external push worker subscribes to.
const TaskNewMessage = "push:new_message"

// AsynqNotifier implements Notifier by enqueueing tasks with
// github.com/hibiken/asynq over Redis.
type AsynqNotifier struct {
	client *asynq.Client
	queue  string
	logger *slog.Logger
}

// NewAsynqNotifier constructs a notifier from a redis URL. Pass nil logger
// for default.
func NewAsynqNotifier(redisURL, queue string, logger *slog.Logger) (*AsynqNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("push: parse redis url: %w", err)
	}
	if queue == "" {
		queue = "notifications"
	}
	return &AsynqNotifier{
		client: asynq.NewClient(opt),
		queue:  queue,
		logger: logger.With("component", "push"),
	}, nil
}

var _ Notifier = (*AsynqNotifier)(nil)

// NotifyNewMessage enqueues a push task for the recipient. Enqueue failures
// are returned to the caller, which logs and continues: a lost push never
// blocks message delivery.
func (a *AsynqNotifier) NotifyNewMessage(ctx context.Context, n NewMessage) error {
	task, err := newMessageTask(n)
	if err != nil {
		return err
	}

	info, err := a.client.EnqueueContext(ctx, task,
		asynq.Queue(a.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("push: enqueue: %w", err)
	}

	a.logger.Debug("push task enqueued",
		"task_id", info.ID,
		"recipient", n.RecipientID,
		"conversation_id", n.ConversationID)
	return nil
}

// newMessageTask builds the asynq task carrying the notification payload.
func newMessageTask(n NewMessage) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("push: marshal payload: %w", err)
	}
	return asynq.NewTask(TaskNewMessage, payload), nil
}

// Close releases the underlying client.
func (a *AsynqNotifier) Close() error {
	return a.client.Close()
}
