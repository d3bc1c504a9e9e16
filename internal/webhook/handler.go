package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumistore/checkout-api/internal/checkout"
	"github.com/lumistore/checkout-api/internal/common"
	"github.com/lumistore/checkout-api/internal/notify"
	"github.com/lumistore/checkout-api/internal/obs"
)

const maxBodyBytes = 64 << 10

// Notifier schedules one best-effort notification delivery.
type Notifier interface {
	Dispatch(msg notify.Message)
}

// Handler processes provider callbacks: verify the signature, branch on event
// type, fire the notification for completed checkouts, acknowledge everything
// that verified. The acknowledgment never depends on notifier success so a
// messaging outage cannot trigger a provider retry storm.
type Handler struct {
	Provider  checkout.Provider
	Notifier  Notifier
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle is the webhook endpoint.
func (h Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	result, err := h.Provider.VerifyEvent(r, body)
	if err != nil {
		if errors.Is(err, checkout.ErrSecretNotConfigured) {
			common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "signing secret missing", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.count(result.Event.Type, "rejected")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	// Optional replay guard: the provider redelivers on non-2xx, and without
	// this every redelivery of a completed event produces a duplicate
	// notification. A nil client disables the guard.
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:stripe:%s", common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			// Fail open: a replay-store outage must not reject genuine events.
			h.Logger.Error().Err(err).Msg("webhook replay guard")
		} else if !fresh {
			h.count(result.Event.Type, "replayed")
			h.ack(w)
			return
		}
	}

	switch result.Event.Type {
	case checkout.EventCheckoutCompleted:
		if h.Notifier != nil {
			h.Notifier.Dispatch(h.buildMessage(r.Context(), result.Event))
		}
		h.count(result.Event.Type, "completed")
	default:
		h.count(result.Event.Type, "ignored")
	}
	h.ack(w)
}

func (h Handler) ack(w http.ResponseWriter) {
	common.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h Handler) count(eventType, result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	obs.PaymentWebhookTotal.WithLabelValues(eventType, result).Inc()
}

// buildMessage derives the notification payload from the verified event. The
// line-item re-query is best-effort: when it fails the message goes out
// without a product description.
func (h Handler) buildMessage(ctx context.Context, ev checkout.Event) notify.Message {
	email := strings.TrimSpace(ev.Session.CustomerEmail)
	if email == "" {
		email = "not available"
	}
	product := ""
	if items, err := h.Provider.GetSessionLineItems(ctx, ev.Session.ID); err != nil {
		h.Logger.Error().Err(err).Str("session_id", ev.Session.ID).Msg("fetch line items")
	} else if len(items) > 0 {
		product = items[0].Description
	}
	return notify.Message{
		Title:         "Payment received",
		Color:         notify.DefaultColor,
		Product:       product,
		Amount:        FormatMinorAmount(ev.Session.AmountTotal),
		Currency:      strings.ToUpper(ev.Session.Currency),
		CustomerEmail: email,
		SessionID:     ev.Session.ID,
		Metadata:      ev.Session.Metadata,
		Timestamp:     time.Now(),
	}
}

// FormatMinorAmount renders integer minor units as a two-decimal major-unit
// string, e.g. 5000 -> "50.00".
func FormatMinorAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
