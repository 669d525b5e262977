package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ntpoppe/textops/internal/domain"
)

func TestParse_RunWithJobKey(t *testing.T) {
	got := Parse("run demo")
	assert.Equal(t, domain.IntentRunJob, got.Type)
	assert.Equal(t, "demo", got.JobKey)
}

func TestParse_RunAlone(t *testing.T) {
	got := Parse("  run  ")
	assert.Equal(t, domain.IntentRunJob, got.Type)
	assert.Empty(t, got.JobKey)
}

func TestParse_ApproveVariants(t *testing.T) {
	for _, text := range []string{"yes AB12CD", "approve AB12CD", "YES ab12cd"} {
		got := Parse(text)
		assert.Equal(t, domain.IntentApproveRun, got.Type, text)
		assert.Equal(t, "AB12CD", got.RunID, text)
	}
}

func TestParse_DenyVariants(t *testing.T) {
	for _, text := range []string{"no AB12CD", "deny AB12CD"} {
		got := Parse(text)
		assert.Equal(t, domain.IntentDenyRun, got.Type, text)
		assert.Equal(t, "AB12CD", got.RunID, text)
	}
}

func TestParse_Status(t *testing.T) {
	got := Parse("status AB12CD")
	assert.Equal(t, domain.IntentStatus, got.Type)
	assert.Equal(t, "AB12CD", got.RunID)
}

func TestParse_UnknownOnTrailingTokens(t *testing.T) {
	cases := []string{
		"run demo extra",
		"yes",
		"approve AB12CD now",
		"ru n demo",
		"run demo!",
		"",
		"hello there",
	}
	for _, text := range cases {
		got := Parse(text)
		assert.Equal(t, domain.IntentUnknown, got.Type, text)
	}
}

func TestParse_PreservesRawTrimmedText(t *testing.T) {
	got := Parse("  run demo  ")
	assert.Equal(t, "run demo", got.RawText)
}
