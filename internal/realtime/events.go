// Package realtime implements the AI realtime service leg: a JSON-framed
// WebSocket carrying audio both ways plus a control channel for session
// configuration, tool invocations and response lifecycle events.
package realtime

import "encoding/json"

// Client event types (core -> model).
const (
	EventTypeSessionUpdate     = "session.update"
	EventTypeAudioAppend       = "input_audio_buffer.append"
	EventTypeResponseCreate    = "response.create"
	EventTypeItemCreate        = "conversation.item.create"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// Server event types (model -> core).
const (
	EventTypeSessionCreated   = "session.created"
	EventTypeSessionUpdated   = "session.updated"
	EventTypeAudioDelta       = "response.output_audio.delta"
	EventTypeAudioDone        = "response.output_audio.done"
	EventTypeTranscriptDelta  = "response.output_audio_transcript.delta"
	EventTypeSpeechStarted    = "input_audio_buffer.speech_started"
	EventTypeSpeechStopped    = "input_audio_buffer.speech_stopped"
	EventTypeResponseCreated  = "response.created"
	EventTypeResponseDone     = "response.done"
	EventTypeFunctionCallDone = "response.function_call_arguments.done"
	EventTypeError            = "error"
)

// AudioFormat describes one side's audio encoding.
type AudioFormat struct {
	Type string `json:"type"`           // e.g. "audio/pcm"
	Rate int    `json:"rate,omitempty"` // sample rate in Hz
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type           string `json:"type"`
	CreateResponse bool   `json:"create_response"`
}

// AudioInput configures the caller-to-model audio path.
type AudioInput struct {
	Format        AudioFormat    `json:"format"`
	TurnDetection *TurnDetection `json:"turn_detection,omitempty"`
}

// AudioOutput configures the model-to-caller audio path.
type AudioOutput struct {
	Format AudioFormat `json:"format"`
	Voice  string      `json:"voice,omitempty"`
}

// AudioConfig nests both audio directions.
type AudioConfig struct {
	Input  AudioInput  `json:"input"`
	Output AudioOutput `json:"output"`
}

// ToolProperty is one parameter of a tool's JSON schema.
type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolParameters is the JSON schema for a tool's arguments.
type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

// Tool is one function the model may invoke during the call.
type Tool struct {
	Type        string         `json:"type"` // always "function"
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// SessionConfig is the session-configuration payload sent once at call start.
// It fixes voice, instructions, audio formats and the tool schema for the
// session's lifetime.
type SessionConfig struct {
	Type             string      `json:"type"` // "realtime"
	Model            string      `json:"model"`
	OutputModalities []string    `json:"output_modalities"`
	Audio            AudioConfig `json:"audio"`
	Instructions     string      `json:"instructions"`
	Tools            []Tool      `json:"tools,omitempty"`
}

// sessionUpdateEvent is the wire envelope for SessionConfig.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// audioAppendEvent carries one base64 caller audio frame to the model.
type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// responseCreateEvent asks the model to produce a response. Instructions are
// set for the initial greeting; empty Input ignores prior context.
type responseCreateEvent struct {
	Type     string          `json:"type"`
	Response responseRequest `json:"response"`
}

type responseRequest struct {
	OutputModalities []string        `json:"output_modalities"`
	Input            json.RawMessage `json:"input,omitempty"`
	Instructions     string          `json:"instructions,omitempty"`
}

// itemCreateEvent returns a tool result to the model's conversation.
type itemCreateEvent struct {
	Type string           `json:"type"`
	Item functionCallItem `json:"item"`
}

type functionCallItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ServerError is the payload of a model error event.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerEvent is one decoded model event. Only the fields relevant to the
// event type are populated; Raw keeps the full payload for debug logging.
type ServerEvent struct {
	Type      string       `json:"type"`
	Delta     string       `json:"delta,omitempty"`
	CallID    string       `json:"call_id,omitempty"`
	Name      string       `json:"name,omitempty"`
	Arguments string       `json:"arguments,omitempty"`
	Error     *ServerError `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseServerEvent decodes one inbound model event.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	ev.Raw = json.RawMessage(data)
	return &ev, nil
}
