package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskTypePaymentNotification identifies queued notification deliveries.
const TaskTypePaymentNotification = "notify:payment"

// QueueName is the asynq queue notifications are enqueued on.
const QueueName = "notify"

// NewPaymentNotificationTask encodes a message as an asynq task. Tasks are
// enqueued with MaxRetry(0): a failed delivery is logged and dropped, matching
// the fire-and-forget contract.
func NewPaymentNotificationTask(msg Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePaymentNotification, payload), nil
}

// TaskHandler consumes queued notification tasks in the worker process.
type TaskHandler struct {
	Sender Sender
	Logger zerolog.Logger
}

// ProcessTask decodes and delivers one message. Errors are logged and
// swallowed so asynq never archives or retries the task.
func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		h.Logger.Error().Err(err).Msg("decode notification task")
		return nil
	}
	start := time.Now()
	err := h.Sender.Send(ctx, msg)
	observeDelivery(time.Since(start), err)
	if err != nil {
		h.Logger.Error().Err(err).Str("session_id", msg.SessionID).Msg("deliver queued notification")
		return nil
	}
	h.Logger.Info().Str("session_id", msg.SessionID).Str("amount", msg.Amount).Msg("notification delivered")
	return nil
}
