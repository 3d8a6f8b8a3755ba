package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DialConfig configures a connection to the AI realtime service.
type DialConfig struct {
	URL          string // wss endpoint, without the model query parameter
	Model        string
	APIKey       string
	PingInterval time.Duration // 0 disables keepalive pings
}

// Leg is the AI-model side of a call: an exclusively owned duplex WebSocket.
// Writes are serialized internally; ReadEvent must be called from a single
// goroutine (the bridge's model pump).
type Leg struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and authenticates to the realtime service.
func Dial(ctx context.Context, cfg DialConfig) (*Leg, error) {
	url := fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime service: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime service: %w", err)
	}

	leg := &Leg{
		conn: conn,
		done: make(chan struct{}),
	}
	if cfg.PingInterval > 0 {
		go leg.pingLoop(cfg.PingInterval)
	}

	slog.Info("[Realtime] Connected", "model", cfg.Model)
	return leg, nil
}

// SendSessionConfig sends the session-configuration event. Must be the first
// event on the leg.
func (l *Leg) SendSessionConfig(cfg SessionConfig) error {
	return l.writeJSON(sessionUpdateEvent{
		Type:    EventTypeSessionUpdate,
		Session: cfg,
	})
}

// AppendAudio forwards one decoded caller audio frame to the model.
func (l *Leg) AppendAudio(pcm []byte) error {
	return l.writeJSON(audioAppendEvent{
		Type:  EventTypeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CreateResponse asks the model to produce an audio response. A non-empty
// instructions string overrides the session instructions for this response
// only (used for the initial greeting).
func (l *Leg) CreateResponse(instructions string) error {
	req := responseRequest{
		OutputModalities: []string{"audio"},
	}
	if instructions != "" {
		// Empty input array: the greeting ignores prior conversation context.
		req.Input = json.RawMessage("[]")
		req.Instructions = instructions
	}
	return l.writeJSON(responseCreateEvent{
		Type:     EventTypeResponseCreate,
		Response: req,
	})
}

// SendToolResult returns a structured tool result for an invocation id.
func (l *Leg) SendToolResult(callID, output string) error {
	return l.writeJSON(itemCreateEvent{
		Type: EventTypeItemCreate,
		Item: functionCallItem{
			Type:   ItemTypeFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	})
}

// ReadEvent blocks for the next model event.
func (l *Leg) ReadEvent() (*ServerEvent, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read model event: %w", err)
	}
	ev, err := ParseServerEvent(data)
	if err != nil {
		return nil, fmt.Errorf("parse model event: %w", err)
	}
	return ev, nil
}

// Close shuts the leg down. Safe to call multiple times and concurrently
// with reads; a blocked ReadEvent returns with an error.
func (l *Leg) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()

		err = l.conn.Close()
	})
	return err
}

func (l *Leg) writeJSON(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write model event: %w", err)
	}
	return nil
}

func (l *Leg) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := l.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-l.done:
			return
		}
	}
}
