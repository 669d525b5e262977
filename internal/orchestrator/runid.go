package orchestrator

import (
	"strings"

	"github.com/google/uuid"
)

// newRunID draws 6 uppercase hex characters from a fresh v4 UUID. Good
// for ~16.7M distinct values; the orchestrator retries once on an
// insert-time collision (see Orchestrator.createRunWithRetry) before giving
// up with ErrRunIDExhausted.
func newRunID() string {
	id := uuid.New()
	hex := strings.ReplaceAll(id.String(), "-", "")
	return strings.ToUpper(hex[:6])
}
