package ports

import (
	"context"
	"time"
)

// Event is an analytics/BI record emitted after a purchase attempt
type Event struct {
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	SessionID  string                 `json:"session_id"`
	SiteID     string                 `json:"site_id"`
}

// EventQueue accepts events for asynchronous delivery.
// Queue must not block on the downstream broker.
type EventQueue interface {
	Queue(ctx context.Context, event Event) error
}

// Postback is a purchase notification sent to the site's callback URL
type Postback struct {
	Payload   map[string]interface{}
	URL       string
	SiteID    string
	SessionID string
	EventType string
}

// PostbackQueue schedules postbacks for asynchronous delivery
type PostbackQueue interface {
	Enqueue(ctx context.Context, postback Postback) error
}
