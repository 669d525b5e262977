package orchestrator

import "errors"

// Sentinel errors surfaced by the orchestrator.
var (
	// ErrRunNotFound — no run exists with the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunIDExhausted — repeated run-id collisions beyond the retry
	// budget; fatal, never expected in practice.
	ErrRunIDExhausted = errors.New("could not generate a unique run id")
)
