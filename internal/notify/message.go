package notify

import "time"

// Message is the structured payload delivered to the messaging webhook. It is
// derived from a verified payment event immediately before one outbound
// delivery attempt and discarded after send.
type Message struct {
	Title         string            `json:"title"`
	Color         int               `json:"color"`
	Product       string            `json:"product"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customerEmail"`
	SessionID     string            `json:"sessionId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// DefaultColor is the embed accent used for payment confirmations.
const DefaultColor = 0x57F287
