package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Sender delivers one notification message, best-effort.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Discord posts a structured embed to a preconfigured Discord webhook URL.
// One outbound call per message: no retry, no backoff, no circuit breaker.
type Discord struct {
	WebhookURL string
	Client     *http.Client
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// Send delivers the message as a single embed. Any network or remote error is
// returned to the caller, which logs and swallows it.
func (d Discord) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(d.WebhookURL) == "" {
		return errors.New("notify: webhook url not configured")
	}
	ctx, span := otel.Tracer("notify.Discord").Start(ctx, "Discord.Send")
	defer span.End()
	span.SetAttributes(attribute.String("notify.session_id", msg.SessionID))

	payload := struct {
		Embeds []embed `json:"embeds"`
	}{Embeds: []embed{buildEmbed(msg)}}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "checkout-api-notify/1.0")

	client := d.Client
	if client == nil {
		client = HttpClient(5 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: deliver message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: remote answered %s", resp.Status)
	}
	return nil
}

func buildEmbed(msg Message) embed {
	title := msg.Title
	if title == "" {
		title = "Payment received"
	}
	color := msg.Color
	if color == 0 {
		color = DefaultColor
	}
	fields := []embedField{
		{Name: "Product", Value: orDash(msg.Product), Inline: true},
		{Name: "Amount", Value: strings.TrimSpace(msg.Amount + " " + msg.Currency), Inline: true},
		{Name: "Customer", Value: orDash(msg.CustomerEmail), Inline: true},
		{Name: "Session", Value: orDash(msg.SessionID)},
	}
	keys := make([]string, 0, len(msg.Metadata))
	for key := range msg.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, embedField{Name: key, Value: orDash(msg.Metadata[key]), Inline: true})
	}
	e := embed{Title: title, Color: color, Fields: fields}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "n/a"
	}
	return value
}

// HttpClient returns an HTTP client configured for webhook delivery.
func HttpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
