package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted messenger event record.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Remote    bool            `json:"remote,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
