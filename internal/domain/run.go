package domain

import "time"

// Run is one job execution request, from first mention through terminal
// outcome.
//
// RunID is an opaque short identifier (6 uppercase hex characters, see
// internal/orchestrator for generation) rather than a UUID: it is meant to
// be typed back by a human over a text channel, so it stays short.
type Run struct {
	RunID               string    `json:"run_id"`
	JobKey              string    `json:"job_key"`
	Status              RunStatus `json:"status"`
	RequestedByAddress  string    `json:"requested_by_address"`
	ChannelID           string    `json:"channel_id"`
	ConversationID      string    `json:"conversation_id"`
	Version             int       `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
