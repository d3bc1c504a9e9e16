package checkout

import (
	"context"
	"net/http"
)

// SessionParams captures the information required to open a hosted checkout
// session with a provider. Amounts are integer minor currency units.
type SessionParams struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Session is the redirectable handle returned by a provider after creating a
// hosted checkout page. The provider owns its lifecycle.
type Session struct {
	ID  string
	URL string
}

// LineItem is an authoritative line-item row as reported by the provider.
type LineItem struct {
	Description string
	Quantity    int64
	AmountTotal int64
	Currency    string
}

// SessionDetail is the session/payment object carried inside a provider event.
type SessionDetail struct {
	ID            string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

// Event is a verified provider callback describing a state change.
type Event struct {
	ID      string
	Type    string
	Session SessionDetail
}

// EventVerifyResult contains the normalised data extracted from a provider
// callback after signature verification.
type EventVerifyResult struct {
	Valid bool
	Event Event
	Err   error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateSession(ctx context.Context, params SessionParams) (Session, error)
	VerifyEvent(r *http.Request, body []byte) (EventVerifyResult, error)
	GetSessionLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
}

// EventCheckoutCompleted is the only event type that triggers a notification.
// Every other type is acknowledged without action.
const EventCheckoutCompleted = "checkout.session.completed"
