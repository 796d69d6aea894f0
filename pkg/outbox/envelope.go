package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the versioned wire form stored in the outbox row and
// published verbatim to the domain topic.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Wallet     string          `json:"wallet,omitempty"`
	Data       json.RawMessage `json:"data"`
}
