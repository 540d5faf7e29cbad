package models

import (
	"encoding/json"
	"time"
)

// Event is one persisted broadcast event row. Rows double as the catch-up
// log for WebSocket clients and as the NOTIFY payload source.
type Event struct {
	ID        int64           `json:"id"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
