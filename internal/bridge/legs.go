package bridge

import (
	"context"

	"github.com/sebas/voicebridge/internal/catalog"
	"github.com/sebas/voicebridge/internal/realtime"
)

// TelephonyLeg is the provider side of one call, exclusively owned by its
// bridge. Implemented by telephony.MediaLeg.
type TelephonyLeg interface {
	// ReadFrame blocks for the next inbound G.711 audio frame.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one G.711 audio frame to the caller.
	WriteFrame(payload []byte) error

	// WriteMark sends a named marker frame.
	WriteMark(name string) error

	// Close releases the leg. Safe to call multiple times.
	Close() error
}

// ModelLeg is the AI side of one call, exclusively owned by its bridge.
// Implemented by realtime.Leg.
type ModelLeg interface {
	// SendSessionConfig sends the session-configuration event.
	SendSessionConfig(cfg realtime.SessionConfig) error

	// AppendAudio forwards one decoded PCM frame to the model.
	AppendAudio(pcm []byte) error

	// CreateResponse asks the model to produce an audio response.
	CreateResponse(instructions string) error

	// SendToolResult returns a structured tool result for an invocation id.
	SendToolResult(callID, output string) error

	// ReadEvent blocks for the next model event.
	ReadEvent() (*realtime.ServerEvent, error)

	// Close releases the leg. Safe to call multiple times.
	Close() error
}

// CallController issues call-control commands to the telephony provider.
// Implemented by telephony.ControlClient.
type CallController interface {
	// Hangup ends the call.
	Hangup(ctx context.Context, callID string) error

	// Transfer hands the call to a routing address with custom headers.
	Transfer(ctx context.Context, callID, to string, headers []catalog.Header) error
}
