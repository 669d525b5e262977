package domain

import "time"

// QueueEntry is one execution dispatch record. The orchestrator creates it
// on approval; workers own every mutation of its status/lock fields after
// that via atomic claim/release/complete.
type QueueEntry struct {
	ID          int64       `json:"id"`
	RunID       string      `json:"run_id"`
	JobKey      string      `json:"job_key"`
	Status      QueueStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	LockedAt    *time.Time  `json:"locked_at,omitempty"`
	LockedBy    *string     `json:"locked_by,omitempty"`
	Attempts    int         `json:"attempts"`
	LastError   *string     `json:"last_error,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
