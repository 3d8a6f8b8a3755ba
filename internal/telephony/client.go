// Package telephony implements the provider-facing side of a call: the
// outbound call-control command client, the media stream leg and the
// inbound webhook receiver.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sebas/voicebridge/internal/catalog"
)

// CommandError reports a call-control command the provider rejected.
// Surfaced to the tool dispatcher as a tool failure, never fatal to the
// bridge.
type CommandError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("call-control %s rejected: status %d: %s", e.Action, e.StatusCode, e.Body)
}

// ControlClient issues call-control commands against the provider's API.
type ControlClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewControlClient creates a client for the given API base URL
// (e.g. "https://api.telnyx.com/v2/calls").
func NewControlClient(baseURL, apiKey string) *ControlClient {
	return &ControlClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Answer accepts an inbound call.
func (c *ControlClient) Answer(ctx context.Context, callID string) error {
	return c.command(ctx, callID, "answer", nil)
}

// Hangup ends the call.
func (c *ControlClient) Hangup(ctx context.Context, callID string) error {
	return c.command(ctx, callID, "hangup", nil)
}

// StartStreaming starts bidirectional media streaming to the given
// WebSocket URL, with G.711 u-law payloads.
func (c *ControlClient) StartStreaming(ctx context.Context, callID, streamURL string) error {
	body := map[string]any{
		"stream_url":                 streamURL,
		"stream_track":               "inbound_track",
		"stream_bidirectional_mode":  "rtp",
		"stream_bidirectional_codec": "PCMU",
	}
	return c.command(ctx, callID, "streaming_start", body)
}

// Transfer hands the call off to the given routing address with optional
// custom SIP headers.
func (c *ControlClient) Transfer(ctx context.Context, callID, to string, headers []catalog.Header) error {
	body := map[string]any{
		"to":              to,
		"timeout_secs":    30,
		"time_limit_secs": 3600,
	}
	if len(headers) > 0 {
		body["sip_headers"] = headers
	}
	return c.command(ctx, callID, "transfer", body)
}

func (c *ControlClient) command(ctx context.Context, callID, action string, body any) error {
	url := fmt.Sprintf("%s/%s/actions/%s", c.baseURL, callID, action)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", action, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s command: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &CommandError{
			Action:     action,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	slog.Debug("[CallControl] Command accepted", "call_id", callID, "action", action)
	return nil
}
