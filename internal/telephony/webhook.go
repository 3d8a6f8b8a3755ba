package telephony

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Provider webhook event types handled by the receiver.
const (
	eventCallInitiated = "call.initiated"
	eventCallHangup    = "call.hangup"
)

// webhookEvent is the provider's call-event envelope.
type webhookEvent struct {
	Data struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			From          string `json:"from"`
			To            string `json:"to"`
			Direction     string `json:"direction"`
			HangupCause   string `json:"hangup_cause,omitempty"`
		} `json:"payload"`
	} `json:"data"`
}

// WebhookHandler receives provider call events: it answers inbound calls,
// starts media streaming toward the bridge, and relays hangup notifications
// to the session owning the call.
type WebhookHandler struct {
	control   *ControlClient
	streamURL string

	// OnHangup is invoked with the call id when the provider reports the
	// call ended. Wired to the session registry by the application.
	OnHangup func(callID string)
}

// NewWebhookHandler creates a webhook receiver. streamURL is the public
// wss:// endpoint the provider should stream call media to.
func NewWebhookHandler(control *ControlClient, streamURL string) *WebhookHandler {
	return &WebhookHandler{
		control:   control,
		streamURL: streamURL,
	}
}

// ServeHTTP handles POSTed provider webhooks.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("[Webhook] Undecodable event", "error", err)
		writeJSON(w, map[string]string{"status": "ignored", "reason": "bad payload"})
		return
	}

	callID := event.Data.Payload.CallControlID
	if callID == "" {
		slog.Warn("[Webhook] Event without call_control_id", "event_type", event.Data.EventType)
		writeJSON(w, map[string]string{"status": "ignored", "reason": "missing call_control_id"})
		return
	}

	switch event.Data.EventType {
	case eventCallInitiated:
		h.handleInitiated(r.Context(), callID, event)
	case eventCallHangup:
		slog.Info("[Webhook] Call ended",
			"call_id", callID,
			"cause", event.Data.Payload.HangupCause,
		)
		if h.OnHangup != nil {
			h.OnHangup(callID)
		}
	default:
		slog.Debug("[Webhook] Ignoring event", "event_type", event.Data.EventType, "call_id", callID)
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) handleInitiated(ctx context.Context, callID string, event webhookEvent) {
	slog.Info("[Webhook] Answering call",
		"call_id", callID,
		"from", event.Data.Payload.From,
		"to", event.Data.Payload.To,
	)

	if err := h.control.Answer(ctx, callID); err != nil {
		slog.Error("[Webhook] Answer failed", "call_id", callID, "error", err)
		return
	}
	if err := h.control.StartStreaming(ctx, callID, h.streamURL); err != nil {
		slog.Error("[Webhook] Streaming start failed", "call_id", callID, "error", err)
		return
	}

	slog.Info("[Webhook] Media streaming started", "call_id", callID, "stream_url", h.streamURL)
}

// HealthHandler reports process liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
