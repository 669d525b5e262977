package domain

import (
	"encoding/json"
	"time"
)

// RunEvent is an immutable audit record appended inside the same
// transaction as the state transition that produced it. Never modified,
// never deleted.
type RunEvent struct {
	ID      int64           `json:"id"`
	RunID   string          `json:"run_id"`
	Type    EventType       `json:"type"`
	At      time.Time       `json:"at"`
	Actor   string          `json:"actor"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent builds a RunEvent from a payload value, marshaling it to JSON.
// At is left zero; the repository stamps it at insert time so that event
// ordering reflects commit order rather than construction order.
func NewEvent(runID string, typ EventType, actor string, payload any) (RunEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return RunEvent{}, err
	}
	return RunEvent{
		RunID:   runID,
		Type:    typ,
		Actor:   actor,
		Payload: raw,
	}, nil
}
