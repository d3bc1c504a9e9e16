package checkout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrSecretNotConfigured is returned by VerifyEvent when no webhook signing
// secret is available. Callers must not process the event.
var ErrSecretNotConfigured = errors.New("webhook signing secret not configured")

const signatureHeader = "Stripe-Signature"

// Stripe implements the Provider interface against the Stripe hosted checkout
// API. Session creation is a form-encoded POST; webhook verification follows
// the t=<ts>,v1=<hmac> signature scheme over "<ts>.<body>".
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Tolerance     time.Duration
	Client        *http.Client
	Now           func() time.Time
}

// CreateSession opens a single-item, single-quantity, one-time-payment hosted
// checkout session and returns its id and redirect URL.
func (s Stripe) CreateSession(ctx context.Context, params SessionParams) (Session, error) {
	if strings.TrimSpace(s.SecretKey) == "" {
		return Session{}, errors.New("stripe secret key not configured")
	}
	if params.UnitAmount <= 0 {
		return Session{}, errors.New("unit amount must be positive")
	}
	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][product_data][name]", params.Name)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.UnitAmount, 10))
	form.Set("line_items[0][quantity]", strconv.FormatInt(quantity, 10))
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v1/checkout/sessions"), strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client().Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Session{}, fmt.Errorf("create checkout session: %s", apiErrorMessage(body, resp.Status))
	}

	var payload struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if payload.ID == "" {
		return Session{}, errors.New("provider returned empty session id")
	}
	return Session{ID: payload.ID, URL: payload.URL}, nil
}

// VerifyEvent validates the signature header against the webhook secret and
// normalises the event envelope. A missing secret is reported as
// ErrSecretNotConfigured so callers can answer with a server error instead of
// silently rejecting every delivery.
func (s Stripe) VerifyEvent(r *http.Request, body []byte) (EventVerifyResult, error) {
	secret := strings.TrimSpace(s.WebhookSecret)
	if secret == "" {
		return EventVerifyResult{}, ErrSecretNotConfigured
	}
	header := strings.TrimSpace(r.Header.Get(signatureHeader))
	if header == "" {
		return EventVerifyResult{Valid: false, Err: errors.New("missing signature header")}, nil
	}
	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return EventVerifyResult{Valid: false, Err: err}, nil
	}

	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	age := now().Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return EventVerifyResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
	}

	expected := ComputeEventSignature(secret, ts, body)
	matched := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			matched = true
			break
		}
	}
	if !matched {
		return EventVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var payload struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID              string `json:"id"`
				AmountTotal     int64  `json:"amount_total"`
				Currency        string `json:"currency"`
				CustomerEmail   string `json:"customer_email"`
				CustomerDetails struct {
					Email string `json:"email"`
				} `json:"customer_details"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return EventVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.Type == "" {
		return EventVerifyResult{Valid: false, Err: errors.New("missing event type")}, nil
	}

	email := payload.Data.Object.CustomerDetails.Email
	if email == "" {
		email = payload.Data.Object.CustomerEmail
	}
	return EventVerifyResult{
		Valid: true,
		Event: Event{
			ID:   payload.ID,
			Type: payload.Type,
			Session: SessionDetail{
				ID:            payload.Data.Object.ID,
				AmountTotal:   payload.Data.Object.AmountTotal,
				Currency:      payload.Data.Object.Currency,
				CustomerEmail: email,
				Metadata:      payload.Data.Object.Metadata,
			},
		},
	}, nil
}

// GetSessionLineItems re-queries the provider for authoritative line-item
// detail when the event payload does not already carry it.
func (s Stripe) GetSessionLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is required")
	}
	endpoint := s.endpoint("/v1/checkout/sessions/" + url.PathEscape(sessionID) + "/line_items")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch line items: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch line items: %s", apiErrorMessage(body, resp.Status))
	}

	var payload struct {
		Data []struct {
			Description string `json:"description"`
			Quantity    int64  `json:"quantity"`
			AmountTotal int64  `json:"amount_total"`
			Currency    string `json:"currency"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	items := make([]LineItem, 0, len(payload.Data))
	for _, row := range payload.Data {
		items = append(items, LineItem{
			Description: row.Description,
			Quantity:    row.Quantity,
			AmountTotal: row.AmountTotal,
			Currency:    row.Currency,
		})
	}
	return items, nil
}

// ComputeEventSignature calculates the webhook signature for the provided
// payload. The signed payload is "<ts>.<body>" under HMAC-SHA256.
func ComputeEventSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders a valid signature header for the payload. Used by
// tests and local tooling to forge provider deliveries.
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeEventSignature(secret, ts, body))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, errors.New("malformed signature timestamp")
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return 0, nil, errors.New("malformed signature header")
	}
	return ts, candidates, nil
}

func apiErrorMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return fallback
}

func (s Stripe) endpoint(path string) string {
	host := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if host == "" {
		host = "https://api.stripe.com"
	}
	return host + path
}

func (s Stripe) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
