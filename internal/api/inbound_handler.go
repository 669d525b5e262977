package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/parser"
)

// HandleInbound implements POST /dev/inbound: the dev channel adapter. It
// translates the transport payload into an InboundMessage, parses it,
// runs it through the orchestrator, and enqueues any resulting dispatch.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "request body must be valid JSON")
		return
	}

	if strings.TrimSpace(req.From) == "" {
		badRequest(w, "field \"from\" is required and must not be blank")
		return
	}
	if strings.TrimSpace(req.Conversation) == "" {
		badRequest(w, "field \"conversation\" is required and must not be blank")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		badRequest(w, "field \"body\" is required and must not be blank")
		return
	}

	providerMessageID := req.ProviderMessageID
	if providerMessageID == "" {
		providerMessageID = randomToken()
	}

	msg := domain.InboundMessage{
		ChannelID:         "dev",
		ConversationID:    devPrefix(req.Conversation),
		FromAddress:       devPrefix(req.From),
		Body:              req.Body,
		ProviderMessageID: providerMessageID,
	}

	intent := parser.Parse(msg.Body)

	result, err := h.orch.HandleInbound(r.Context(), msg, intent)
	if err != nil {
		internalError(w, h.logger, err)
		return
	}

	if result.DispatchedExecution && result.Dispatch != nil {
		if err := h.queue.Enqueue(r.Context(), result.Dispatch.RunID, result.Dispatch.JobKey); err != nil {
			internalError(w, h.logger, err)
			return
		}
	}

	resp := InboundResponse{
		IntentType:          string(intent.Type),
		JobKey:              intent.JobKey,
		RunID:               nilIfEmpty(result.RunID),
		DispatchedExecution: result.DispatchedExecution,
		Outbound:            outboundDTOs(result.Outbound),
	}
	writeJSON(w, http.StatusOK, resp)
}

func devPrefix(s string) string {
	if strings.HasPrefix(s, "dev:") {
		return s
	}
	return "dev:" + s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func randomToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
