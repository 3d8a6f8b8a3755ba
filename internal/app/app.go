// Package app wires configuration, the HTTP surface and per-call bridges
// into the voicebridge server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebas/voicebridge/internal/bridge"
	"github.com/sebas/voicebridge/internal/catalog"
	"github.com/sebas/voicebridge/internal/config"
	"github.com/sebas/voicebridge/internal/realtime"
	"github.com/sebas/voicebridge/internal/session"
	"github.com/sebas/voicebridge/internal/telephony"
)

const modelPingInterval = 20 * time.Second

// VoiceBridge is the server: a webhook receiver that answers inbound calls
// and a media WebSocket endpoint that runs one bridge per call.
type VoiceBridge struct {
	cfg      *config.Config
	control  *telephony.ControlClient
	catalog  *catalog.Loader
	registry *session.Registry
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	// baseCtx is the process lifetime; cancelling it shuts every bridge
	// down with the shutdown cause.
	baseCtx context.Context
}

// NewServer assembles the server from configuration.
func NewServer(cfg *config.Config) (*VoiceBridge, error) {
	loader, err := catalog.New(cfg.CatalogPath, nil)
	if err != nil {
		return nil, fmt.Errorf("load department catalog: %w", err)
	}
	if cat := loader.Snapshot(); !cat.Empty() {
		slog.Info("[App] Departments configured", "departments", cat.Names())
	} else {
		slog.Info("[App] No departments configured, transfers disabled")
	}

	control := telephony.NewControlClient(cfg.TelephonyAPIBase, cfg.TelephonyAPIKey)
	registry := session.NewRegistry()

	s := &VoiceBridge{
		cfg:      cfg,
		control:  control,
		catalog:  loader,
		registry: registry,
		baseCtx:  context.Background(),
	}

	webhook := telephony.NewWebhookHandler(control, cfg.StreamURL())
	webhook.OnHangup = func(callID string) {
		sess, err := registry.Lookup(callID)
		if err != nil {
			// Already torn down, or the media stream never started.
			slog.Debug("[App] Hangup for unknown session", "call_id", callID)
			return
		}
		sess.RequestTerminate(session.CauseProviderHangup)
	}

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("/media", s.handleMedia)
	mux.HandleFunc("/health", telephony.HealthHandler)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port),
		Handler: mux,
	}
	return s, nil
}

// Start runs the HTTP server until ctx is cancelled, then shuts down: all
// active bridges are asked to terminate and the listener is closed.
func (s *VoiceBridge) Start(ctx context.Context) error {
	s.baseCtx = ctx

	slog.Info("[App] Listening",
		"addr", s.httpSrv.Addr,
		"stream_url", s.cfg.StreamURL(),
		"model", s.cfg.RealtimeModel,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("[App] Shutting down", "active_calls", s.registry.Count())
	s.registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Registry exposes the session registry, used by tests and diagnostics.
func (s *VoiceBridge) Registry() *session.Registry {
	return s.registry
}

// handleMedia upgrades the provider's media connection and runs the call's
// bridge until the call ends. One connection is one call.
func (s *VoiceBridge) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[App] Media upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	tel, err := telephony.AcceptStart(conn)
	if err != nil {
		slog.Warn("[App] Media stream did not start", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	// The session captures one catalog snapshot; later reloads affect only
	// new calls.
	cat := s.catalog.Snapshot()
	sess := session.New(tel.CallID(), cat, s.cfg.ToolResultTTL)
	if err := s.registry.Register(sess); err != nil {
		slog.Error("[App] Rejecting media stream", "call_id", tel.CallID(), "error", err)
		sess.Release()
		tel.Close()
		return
	}

	dialCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	model, err := realtime.Dial(dialCtx, realtime.DialConfig{
		URL:          s.cfg.RealtimeURL,
		Model:        s.cfg.RealtimeModel,
		APIKey:       s.cfg.RealtimeAPIKey,
		PingInterval: modelPingInterval,
	})
	cancel()
	if err != nil {
		slog.Error("[App] Realtime dial failed", "call_id", tel.CallID(), "error", err)
		s.registry.Remove(sess.CallID)
		sess.Release()
		tel.Close()
		return
	}

	b, err := bridge.New(bridge.Config{
		Session:       sess,
		Registry:      s.registry,
		Telephony:     tel,
		Model:         model,
		Control:       s.control,
		SessionConfig: s.buildSessionConfig(cat),
		Greeting:      s.cfg.AgentGreeting,
		ToolTTL:       s.cfg.ToolResultTTL,
	})
	if err != nil {
		slog.Error("[App] Bridge setup failed", "call_id", tel.CallID(), "error", err)
		s.registry.Remove(sess.CallID)
		sess.Release()
		tel.Close()
		model.Close()
		return
	}

	b.Run(s.baseCtx)
}

// buildSessionConfig fixes the model session for one call: audio formats,
// voice, instructions and the tool schema derived from the catalog snapshot.
func (s *VoiceBridge) buildSessionConfig(cat catalog.Catalog) realtime.SessionConfig {
	return realtime.SessionConfig{
		Type:             "realtime",
		Model:            s.cfg.RealtimeModel,
		OutputModalities: []string{"audio"},
		Audio: realtime.AudioConfig{
			Input: realtime.AudioInput{
				Format: realtime.AudioFormat{Type: "audio/pcm", Rate: 24000},
				TurnDetection: &realtime.TurnDetection{
					Type:           "semantic_vad",
					CreateResponse: true,
				},
			},
			Output: realtime.AudioOutput{
				Format: realtime.AudioFormat{Type: "audio/pcm", Rate: 24000},
				Voice:  s.cfg.AgentVoice,
			},
		},
		Instructions: bridge.BuildInstructions(s.cfg.AgentInstructions, cat),
		Tools:        bridge.BuildToolSchema(cat),
	}
}
