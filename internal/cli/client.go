// Package cli implements the textops-cli operator client: a thin HTTP
// wrapper plus cobra commands that mirror the text-command grammar
// parsed by internal/parser, sent over the dev channel adapter.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InboundRequest mirrors api.InboundRequest; the CLI does not import
// internal/api directly so the wire contract stays its own copy.
type InboundRequest struct {
	From              string `json:"from"`
	Conversation      string `json:"conversation"`
	Body              string `json:"body"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

type OutboundDTO struct {
	Body           string `json:"body"`
	CorrelationID  string `json:"correlationId"`
	IdempotencyKey string `json:"idempotencyKey"`
	ChannelID      string `json:"channelId"`
	Conversation   string `json:"conversation"`
}

type InboundResponse struct {
	IntentType          string        `json:"intentType"`
	JobKey              string        `json:"jobKey,omitempty"`
	RunID               *string       `json:"runId"`
	DispatchedExecution bool          `json:"dispatchedExecution"`
	Outbound            []OutboundDTO `json:"outbound"`
}

type RunDTO struct {
	RunID              string `json:"runId"`
	JobKey             string `json:"jobKey"`
	Status             string `json:"status"`
	CreatedAt          string `json:"createdAt"`
	RequestedByAddress string `json:"requestedByAddress"`
	ChannelID          string `json:"channelId"`
	ConversationID     string `json:"conversationId"`
}

type EventDTO struct {
	RunID   string `json:"runId"`
	Type    string `json:"type"`
	At      string `json:"at"`
	Actor   string `json:"actor"`
	Payload any    `json:"payload"`
}

type TimelineResponse struct {
	Run    RunDTO     `json:"run"`
	Events []EventDTO `json:"events"`
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Client is an HTTP client for the textops-server dev API.
type Client struct {
	baseURL    string
	from       string
	httpClient *http.Client
}

// NewClient builds a Client addressing baseURL, acting as the fixed
// sender identity from (the "from" address on every inbound request).
func NewClient(baseURL, from string) *Client {
	return &Client{
		baseURL:    baseURL,
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendText posts body as one inbound message in the given conversation.
func (c *Client) SendText(conversation, body string) (*InboundResponse, error) {
	req := InboundRequest{From: c.from, Conversation: conversation, Body: body}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/dev/inbound", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("post inbound: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, readProblem(resp)
	}

	var out InboundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// GetRun fetches a run's timeline.
func (c *Client) GetRun(runID string) (*TimelineResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/runs/" + runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, readProblem(resp)
	}

	var out TimelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func readProblem(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var p problem
	if err := json.Unmarshal(body, &p); err != nil || p.Detail == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", p.Title, p.Detail)
}
