package models

import (
	"encoding/json"
	"time"
)

// WebhookEventRecord marks a provider event as processed. ID is the
// provider's event ID and is unique across the table.
type WebhookEventRecord struct {
	ID          string    `db:"id"`
	Provider    string    `db:"provider"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// BeginResult reports whether the caller won the claim on an event
type BeginResult struct {
	IsNew bool `json:"is_new"`
}

// WebhookEvent is a verified delivery handed to an event processor
type WebhookEvent struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Provider string          `json:"-"`
	Payload  json.RawMessage `json:"-"`
}
