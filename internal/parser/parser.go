// Package parser implements the deterministic command grammar that turns
// one line of inbound text into a domain.ParsedIntent.
package parser

import (
	"regexp"
	"strings"

	"github.com/ntpoppe/textops/internal/domain"
)

// tokenPattern is the jobKey/runId token class: letters, digits,
// underscore, hyphen.
var tokenPattern = `[A-Za-z0-9_-]+`

var (
	runWithToken  = regexp.MustCompile(`(?i)^run\s+(` + tokenPattern + `)$`)
	runAlone      = regexp.MustCompile(`(?i)^run$`)
	approveRun    = regexp.MustCompile(`(?i)^(?:yes|approve)\s+(` + tokenPattern + `)$`)
	denyRun       = regexp.MustCompile(`(?i)^(?:no|deny)\s+(` + tokenPattern + `)$`)
	statusRun     = regexp.MustCompile(`(?i)^status\s+(` + tokenPattern + `)$`)
)

// Parse trims surrounding whitespace and matches exactly one grammar
// pattern, case-insensitively. Any trailing tokens, embedded punctuation,
// or partial match yields Unknown. The parser never guesses: a string
// that almost matches a pattern is not massaged into matching it.
func Parse(text string) domain.ParsedIntent {
	trimmed := strings.TrimSpace(text)

	switch {
	case runAlone.MatchString(trimmed):
		return domain.ParsedIntent{Type: domain.IntentRunJob, RawText: trimmed}

	case runWithToken.MatchString(trimmed):
		m := runWithToken.FindStringSubmatch(trimmed)
		return domain.ParsedIntent{Type: domain.IntentRunJob, JobKey: m[1], RawText: trimmed}

	case approveRun.MatchString(trimmed):
		m := approveRun.FindStringSubmatch(trimmed)
		return domain.ParsedIntent{Type: domain.IntentApproveRun, RunID: strings.ToUpper(m[1]), RawText: trimmed}

	case denyRun.MatchString(trimmed):
		m := denyRun.FindStringSubmatch(trimmed)
		return domain.ParsedIntent{Type: domain.IntentDenyRun, RunID: strings.ToUpper(m[1]), RawText: trimmed}

	case statusRun.MatchString(trimmed):
		m := statusRun.FindStringSubmatch(trimmed)
		return domain.ParsedIntent{Type: domain.IntentStatus, RunID: strings.ToUpper(m[1]), RawText: trimmed}

	default:
		return domain.ParsedIntent{Type: domain.IntentUnknown, RawText: trimmed}
	}
}
