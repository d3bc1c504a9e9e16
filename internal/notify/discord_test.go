package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumistore/checkout-api/internal/notify"
)

type capturedEmbed struct {
	Title  string `json:"title"`
	Color  int    `json:"color"`
	Fields []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
	Timestamp string `json:"timestamp"`
}

func TestSendPostsEmbed(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	sender := notify.Discord{WebhookURL: srv.URL, Client: srv.Client()}
	err := sender.Send(context.Background(), notify.Message{
		Product:       "Ceramic Mug",
		Amount:        "50.00",
		Currency:      "USD",
		CustomerEmail: "jo@example.com",
		SessionID:     "cs_1",
		Metadata:      map[string]string{"orderRef": "A-17"},
		Timestamp:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var payload struct {
		Embeds []capturedEmbed `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(<-received, &payload))
	require.Len(t, payload.Embeds, 1)

	e := payload.Embeds[0]
	require.Equal(t, "Payment received", e.Title)
	require.Equal(t, notify.DefaultColor, e.Color)
	require.Equal(t, "2026-08-30T12:00:00Z", e.Timestamp)

	values := map[string]string{}
	for _, f := range e.Fields {
		values[f.Name] = f.Value
	}
	require.Equal(t, "Ceramic Mug", values["Product"])
	require.Equal(t, "50.00 USD", values["Amount"])
	require.Equal(t, "jo@example.com", values["Customer"])
	require.Equal(t, "cs_1", values["Session"])
	require.Equal(t, "A-17", values["orderRef"])
}

func TestSendFillsEmptyFields(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	sender := notify.Discord{WebhookURL: srv.URL, Client: srv.Client()}
	require.NoError(t, sender.Send(context.Background(), notify.Message{Amount: "10.00", Currency: "USD"}))

	var payload struct {
		Embeds []capturedEmbed `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(<-received, &payload))
	values := map[string]string{}
	for _, f := range payload.Embeds[0].Fields {
		values[f.Name] = f.Value
	}
	require.Equal(t, "n/a", values["Product"])
	require.Equal(t, "n/a", values["Customer"])
}

func TestSendRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	sender := notify.Discord{WebhookURL: srv.URL, Client: srv.Client()}
	err := sender.Send(context.Background(), notify.Message{})
	require.Error(t, err)
}

func TestSendWithoutURL(t *testing.T) {
	sender := notify.Discord{}
	require.Error(t, sender.Send(context.Background(), notify.Message{}))
}
