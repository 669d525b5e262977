package repo

import "errors"

// Sentinel errors returned by the repository layer; callers compare with
// errors.Is rather than type-asserting.
var (
	// ErrNotFound — no row matched the requested key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyProcessed — an inbox entry already exists for this
	// (channel_id, provider_message_id) pair.
	ErrAlreadyProcessed = errors.New("already processed")
)
