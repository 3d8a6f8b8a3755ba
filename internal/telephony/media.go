package telephony

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrStreamEnded indicates the provider ended the media stream (stop frame
// or socket close). The bridge treats it as leg termination.
var ErrStreamEnded = errors.New("media stream ended")

// Media stream frame event names.
const (
	frameEventStart = "start"
	frameEventMedia = "media"
	frameEventStop  = "stop"
	frameEventMark  = "mark"

	// legacy name some provider stacks send instead of "stop"
	frameEventCallEnded = "callEnded"
)

// streamFrame is the JSON envelope on the provider's media WebSocket.
type streamFrame struct {
	Event          string      `json:"event"`
	SequenceNumber string      `json:"sequence_number,omitempty"`
	StreamID       string      `json:"stream_id,omitempty"`
	Start          *startFrame `json:"start,omitempty"`
	Media          *mediaFrame `json:"media,omitempty"`
	Mark           *markFrame  `json:"mark,omitempty"`
}

type startFrame struct {
	CallControlID string      `json:"call_control_id"`
	MediaFormat   mediaFormat `json:"media_format"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type mediaFrame struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type markFrame struct {
	Name string `json:"name"`
}

// MediaLeg is the telephony side of a call: an exclusively owned duplex
// WebSocket carrying fixed-duration G.711 frames both ways. Writes are
// serialized internally; ReadFrame must be called from a single goroutine
// (the bridge's telephony pump).
type MediaLeg struct {
	conn     *websocket.Conn
	streamID string
	callID   string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// AcceptStart consumes frames on a freshly upgraded media socket until the
// provider's start frame arrives, which identifies the call. Returns
// ErrStreamEnded if the stream stops before starting.
func AcceptStart(conn *websocket.Conn) (*MediaLeg, error) {
	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return nil, fmt.Errorf("read start frame: %w", err)
		}

		switch frame.Event {
		case frameEventStart:
			if frame.Start == nil || frame.Start.CallControlID == "" {
				return nil, fmt.Errorf("start frame missing call id")
			}
			slog.Info("[MediaLeg] Stream started",
				"call_id", frame.Start.CallControlID,
				"stream_id", frame.StreamID,
				"encoding", frame.Start.MediaFormat.Encoding,
			)
			return &MediaLeg{
				conn:     conn,
				streamID: frame.StreamID,
				callID:   frame.Start.CallControlID,
			}, nil
		case frameEventStop, frameEventCallEnded:
			return nil, ErrStreamEnded
		default:
			// connected frames and the like arrive before start
		}
	}
}

// CallID returns the provider's call identifier for this stream.
func (l *MediaLeg) CallID() string {
	return l.callID
}

// StreamID returns the provider's stream identifier.
func (l *MediaLeg) StreamID() string {
	return l.streamID
}

// ReadFrame blocks for the next inbound audio frame and returns the raw
// G.711 payload. Returns ErrStreamEnded when the provider stops the stream.
func (l *MediaLeg) ReadFrame() ([]byte, error) {
	for {
		var frame streamFrame
		if err := l.conn.ReadJSON(&frame); err != nil {
			return nil, fmt.Errorf("read media frame: %w", err)
		}

		switch frame.Event {
		case frameEventMedia:
			if frame.Media == nil || frame.Media.Payload == "" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err != nil {
				slog.Warn("[MediaLeg] Dropping undecodable frame", "call_id", l.callID, "error", err)
				continue
			}
			return payload, nil
		case frameEventStop, frameEventCallEnded:
			return nil, ErrStreamEnded
		default:
			// marks echoed back and other control frames are not audio
		}
	}
}

// WriteFrame sends one G.711 payload to the caller.
func (l *MediaLeg) WriteFrame(payload []byte) error {
	frame := streamFrame{
		Event:    frameEventMedia,
		StreamID: l.streamID,
		Media: &mediaFrame{
			Payload: base64.StdEncoding.EncodeToString(payload),
		},
	}
	return l.writeJSON(frame)
}

// WriteMark sends a named marker frame, used to flag the end of a model
// utterance on the provider side.
func (l *MediaLeg) WriteMark(name string) error {
	frame := streamFrame{
		Event:    frameEventMark,
		StreamID: l.streamID,
		Mark:     &markFrame{Name: name},
	}
	return l.writeJSON(frame)
}

// Close shuts the leg down. Safe to call multiple times and concurrently
// with reads; a blocked ReadFrame returns with an error.
func (l *MediaLeg) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()

		err = l.conn.Close()
	})
	return err
}

func (l *MediaLeg) writeJSON(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write media frame: %w", err)
	}
	return nil
}
