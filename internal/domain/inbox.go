package domain

import "time"

// InboxEntry is the inbound-message dedup key. Composite primary key
// (ChannelID, ProviderMessageID); created before any side effects for a
// given message complete, never deleted.
type InboxEntry struct {
	ChannelID         string    `json:"channel_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	ProcessedAt       time.Time `json:"processed_at"`
	RunID             *string   `json:"run_id,omitempty"`
}
