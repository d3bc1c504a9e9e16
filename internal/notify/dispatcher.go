package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/lumistore/checkout-api/internal/obs"
)

// Dispatcher hands a message off for delivery after the webhook response
// decision is finalised. Delivery failures never propagate to the caller:
// the isolated error handler only logs.
type Dispatcher struct {
	Sender  Sender
	Queue   *asynq.Client
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Dispatch schedules exactly one delivery attempt for the message. With a
// queue client configured the task is enqueued for the worker; otherwise the
// send happens on a detached goroutine so the caller is never blocked.
func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.Sender == nil {
		return
	}
	if d.Queue != nil {
		task, err := NewPaymentNotificationTask(msg)
		if err == nil {
			_, err = d.Queue.Enqueue(task,
				asynq.Queue(QueueName),
				asynq.MaxRetry(0),
				asynq.TaskID(uuid.NewString()),
			)
		}
		if err == nil {
			return
		}
		d.Logger.Error().Err(err).Str("session_id", msg.SessionID).Msg("enqueue notification, falling back to inline send")
	}
	go d.send(msg)
}

func (d *Dispatcher) send(msg Message) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Detached from the inbound request context: the provider has already
	// been acknowledged by the time this runs.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := d.Sender.Send(ctx, msg)
	observeDelivery(time.Since(start), err)
	if err != nil {
		d.Logger.Error().Err(err).Str("session_id", msg.SessionID).Msg("deliver notification")
		return
	}
	d.Logger.Info().Str("session_id", msg.SessionID).Str("amount", msg.Amount).Msg("notification delivered")
}

func observeDelivery(elapsed time.Duration, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	if obs.NotifyDeliveriesTotal != nil {
		obs.NotifyDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.NotifyAttemptLatency != nil {
		obs.NotifyAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(elapsed))
	}
}
