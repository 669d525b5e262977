package worker

import (
	"fmt"
	"io"

	"github.com/ntpoppe/textops/internal/domain"
)

// OutboundSink delivers an outbound message produced by an orchestrator
// callback. The worker loop is the only caller with no HTTP response to
// carry outbound effects back on, so it must deliver them itself.
type OutboundSink func(domain.OutboundMessage)

// NewStderrOutboundSink returns a sink satisfying the minimum delivery
// contract: "log to stderr in the format OUTBOUND ({channel}): {body}".
func NewStderrOutboundSink(w io.Writer) OutboundSink {
	return func(msg domain.OutboundMessage) {
		fmt.Fprintf(w, "OUTBOUND (%s): %s\n", msg.ChannelID, msg.Body)
	}
}
