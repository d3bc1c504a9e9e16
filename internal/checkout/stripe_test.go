package checkout_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumistore/checkout-api/internal/checkout"
)

func TestCreateSessionSendsFormFields(t *testing.T) {
	received := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		received <- form
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_abc","url":"https://checkout.stripe.com/pay/cs_test_abc"}`))
	}))
	t.Cleanup(srv.Close)

	provider := checkout.Stripe{SecretKey: "sk_test_123", BaseURL: srv.URL, Client: srv.Client()}
	session, err := provider.CreateSession(context.Background(), checkout.SessionParams{
		Name:       "Ceramic Mug",
		UnitAmount: 400,
		Quantity:   1,
		Currency:   "USD",
		SuccessURL: "https://shop.example/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.example/cancel.html",
		Metadata:   map[string]string{"orderRef": "A-17"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_abc", session.ID)
	require.Equal(t, "https://checkout.stripe.com/pay/cs_test_abc", session.URL)

	form := <-received
	require.Equal(t, "payment", form.Get("mode"))
	require.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	require.Equal(t, "Ceramic Mug", form.Get("line_items[0][price_data][product_data][name]"))
	require.Equal(t, "400", form.Get("line_items[0][price_data][unit_amount]"))
	require.Equal(t, "1", form.Get("line_items[0][quantity]"))
	require.Equal(t, "https://shop.example/success.html?session_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
	require.Equal(t, "https://shop.example/cancel.html", form.Get("cancel_url"))
	require.Equal(t, "A-17", form.Get("metadata[orderRef]"))
}

func TestCreateSessionRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	t.Cleanup(srv.Close)

	provider := checkout.Stripe{SecretKey: "sk_test_123", BaseURL: srv.URL, Client: srv.Client()}
	_, err := provider.CreateSession(context.Background(), checkout.SessionParams{Name: "Mug", UnitAmount: 400, Currency: "usd"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Your card was declined.")
}

func TestCreateSessionRejectsNonPositiveAmount(t *testing.T) {
	provider := checkout.Stripe{SecretKey: "sk_test_123"}
	_, err := provider.CreateSession(context.Background(), checkout.SessionParams{Name: "Mug", UnitAmount: 0, Currency: "usd"})
	require.Error(t, err)
}

func TestVerifyEventValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{` +
		`"id":"cs_test_abc","amount_total":5000,"currency":"usd",` +
		`"customer_details":{"email":"jo@example.com"},"metadata":{"orderRef":"A-17"}}}}`)

	provider := checkout.Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Stripe-Signature", checkout.SignatureHeader("whsec_test", now.Unix(), body))

	result, err := provider.VerifyEvent(req, body)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "evt_1", result.Event.ID)
	require.Equal(t, checkout.EventCheckoutCompleted, result.Event.Type)
	require.Equal(t, "cs_test_abc", result.Event.Session.ID)
	require.Equal(t, int64(5000), result.Event.Session.AmountTotal)
	require.Equal(t, "usd", result.Event.Session.Currency)
	require.Equal(t, "jo@example.com", result.Event.Session.CustomerEmail)
	require.Equal(t, "A-17", result.Event.Session.Metadata["orderRef"])
}

func TestVerifyEventRejectsBadSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	provider := checkout.Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Stripe-Signature", checkout.SignatureHeader("whsec_other", now.Unix(), body))

	result, err := provider.VerifyEvent(req, body)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Error(t, result.Err)
}

func TestVerifyEventRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"amount_total":5000}}}`)

	provider := checkout.Stripe{WebhookSecret: "whsec_test", Now: func() time.Time { return now }}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Stripe-Signature", checkout.SignatureHeader("whsec_test", now.Unix(), body))

	tampered := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"amount_total":1}}}`)
	result, err := provider.VerifyEvent(req, tampered)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestVerifyEventRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	signedAt := now.Add(-10 * time.Minute).Unix()

	provider := checkout.Stripe{WebhookSecret: "whsec_test", Tolerance: 5 * time.Minute, Now: func() time.Time { return now }}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("Stripe-Signature", checkout.SignatureHeader("whsec_test", signedAt, body))

	result, err := provider.VerifyEvent(req, body)
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestVerifyEventMissingHeader(t *testing.T) {
	provider := checkout.Stripe{WebhookSecret: "whsec_test"}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)

	result, err := provider.VerifyEvent(req, []byte(`{}`))
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestVerifyEventMissingSecret(t *testing.T) {
	provider := checkout.Stripe{}
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)

	_, err := provider.VerifyEvent(req, []byte(`{}`))
	require.ErrorIs(t, err, checkout.ErrSecretNotConfigured)
}

func TestGetSessionLineItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions/cs_test_abc/line_items", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"description":"Ceramic Mug","quantity":1,"amount_total":5000,"currency":"usd"}]}`))
	}))
	t.Cleanup(srv.Close)

	provider := checkout.Stripe{SecretKey: "sk_test_123", BaseURL: srv.URL, Client: srv.Client()}
	items, err := provider.GetSessionLineItems(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Ceramic Mug", items[0].Description)
	require.Equal(t, int64(5000), items[0].AmountTotal)
}
