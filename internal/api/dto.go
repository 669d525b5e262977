package api

import (
	"encoding/json"
	"time"

	"github.com/ntpoppe/textops/internal/domain"
)

// InboundRequest is the body of POST /dev/inbound.
type InboundRequest struct {
	From              string `json:"from"`
	Conversation      string `json:"conversation"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

// OutboundDTO is one outbound effect in an InboundResponse.
type OutboundDTO struct {
	Body           string `json:"body"`
	CorrelationID  string `json:"correlationId"`
	IdempotencyKey string `json:"idempotencyKey"`
	ChannelID      string `json:"channelId"`
	Conversation   string `json:"conversation"`
}

// InboundResponse is the body of a successful POST /dev/inbound.
type InboundResponse struct {
	IntentType          string        `json:"intentType"`
	JobKey              string        `json:"jobKey,omitempty"`
	RunID               *string       `json:"runId"`
	DispatchedExecution bool          `json:"dispatchedExecution"`
	Outbound            []OutboundDTO `json:"outbound"`
}

func outboundDTOs(msgs []domain.OutboundMessage) []OutboundDTO {
	out := make([]OutboundDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, OutboundDTO{
			Body:           m.Body,
			CorrelationID:  m.CorrelationID,
			IdempotencyKey: m.IdempotencyKey,
			ChannelID:      m.ChannelID,
			Conversation:   m.ConversationID,
		})
	}
	return out
}

// RunDTO is a run as returned by GET /runs/{runId}.
type RunDTO struct {
	RunID              string    `json:"runId"`
	JobKey             string    `json:"jobKey"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	RequestedByAddress string    `json:"requestedByAddress"`
	ChannelID          string    `json:"channelId"`
	ConversationID     string    `json:"conversationId"`
}

func runDTO(r domain.Run) RunDTO {
	return RunDTO{
		RunID:              r.RunID,
		JobKey:             r.JobKey,
		Status:             string(r.Status),
		CreatedAt:          r.CreatedAt,
		RequestedByAddress: r.RequestedByAddress,
		ChannelID:          r.ChannelID,
		ConversationID:     r.ConversationID,
	}
}

// EventDTO is one run event as returned by GET /runs/{runId}.
type EventDTO struct {
	RunID   string    `json:"runId"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Payload any       `json:"payload"`
}

func eventDTOs(events []domain.RunEvent) []EventDTO {
	out := make([]EventDTO, 0, len(events))
	for _, e := range events {
		var payload any
		_ = json.Unmarshal(e.Payload, &payload)
		out = append(out, EventDTO{
			RunID:   e.RunID,
			Type:    string(e.Type),
			At:      e.At,
			Actor:   e.Actor,
			Payload: payload,
		})
	}
	return out
}

// TimelineResponse is the body of a successful GET /runs/{runId}.
type TimelineResponse struct {
	Run    RunDTO     `json:"run"`
	Events []EventDTO `json:"events"`
}
