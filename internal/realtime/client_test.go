package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeService runs a loopback realtime endpoint and exposes the raw JSON
// events the leg writes.
type fakeService struct {
	srv      *httptest.Server
	received chan map[string]any
	auth     chan string
	conn     chan *websocket.Conn
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	f := &fakeService{
		received: make(chan map[string]any, 16),
		auth:     make(chan string, 1),
		conn:     make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		f.conn <- conn

		for {
			var ev map[string]any
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			f.received <- ev
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeService) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case ev := <-f.received:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received from leg")
		return nil
	}
}

func dialTestLeg(t *testing.T, f *fakeService) *Leg {
	t.Helper()
	leg, err := Dial(context.Background(), DialConfig{
		URL:    f.url(),
		Model:  "gpt-realtime",
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { leg.Close() })
	return leg
}

func TestDialSendsBearerAuth(t *testing.T) {
	f := newFakeService(t)
	dialTestLeg(t, f)

	select {
	case auth := <-f.auth:
		if auth != "Bearer sk-test" {
			t.Errorf("authorization = %q, want bearer key", auth)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no connection observed")
	}
}

func TestSendSessionConfig(t *testing.T) {
	f := newFakeService(t)
	leg := dialTestLeg(t, f)

	cfg := SessionConfig{
		Type:             "realtime",
		Model:            "gpt-realtime",
		OutputModalities: []string{"audio"},
		Audio: AudioConfig{
			Input: AudioInput{
				Format:        AudioFormat{Type: "audio/pcm", Rate: 24000},
				TurnDetection: &TurnDetection{Type: "semantic_vad", CreateResponse: true},
			},
			Output: AudioOutput{
				Format: AudioFormat{Type: "audio/pcm", Rate: 24000},
				Voice:  "marin",
			},
		},
		Instructions: "Be helpful.",
	}
	if err := leg.SendSessionConfig(cfg); err != nil {
		t.Fatalf("SendSessionConfig: %v", err)
	}

	ev := f.next(t)
	if ev["type"] != EventTypeSessionUpdate {
		t.Fatalf("type = %v, want session.update", ev["type"])
	}
	session, _ := ev["session"].(map[string]any)
	if session["instructions"] != "Be helpful." {
		t.Errorf("instructions = %v", session["instructions"])
	}
	audio, _ := session["audio"].(map[string]any)
	output, _ := audio["output"].(map[string]any)
	if output["voice"] != "marin" {
		t.Errorf("voice = %v, want marin", output["voice"])
	}
}

func TestAppendAudioEncodesBase64(t *testing.T) {
	f := newFakeService(t)
	leg := dialTestLeg(t, f)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := leg.AppendAudio(pcm); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}

	ev := f.next(t)
	if ev["type"] != EventTypeAudioAppend {
		t.Fatalf("type = %v, want input_audio_buffer.append", ev["type"])
	}
	audio, _ := ev["audio"].(string)
	decoded, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("decoded audio = %v, want original frame", decoded)
	}
}

func TestCreateResponse(t *testing.T) {
	f := newFakeService(t)
	leg := dialTestLeg(t, f)

	// Greeting: instructions override with empty input context.
	if err := leg.CreateResponse("Greet the caller."); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	ev := f.next(t)
	if ev["type"] != EventTypeResponseCreate {
		t.Fatalf("type = %v, want response.create", ev["type"])
	}
	response, _ := ev["response"].(map[string]any)
	if response["instructions"] != "Greet the caller." {
		t.Errorf("instructions = %v", response["instructions"])
	}
	input, present := response["input"].([]any)
	if !present || len(input) != 0 {
		t.Errorf("input = %v, want present and empty", response["input"])
	}

	// Recovery nudge: no instruction override, prior context kept.
	if err := leg.CreateResponse(""); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	ev = f.next(t)
	response, _ = ev["response"].(map[string]any)
	if _, present := response["instructions"]; present {
		t.Error("empty instructions were sent on the wire")
	}
	if _, present := response["input"]; present {
		t.Error("input override sent without instructions")
	}
}

func TestSendToolResult(t *testing.T) {
	f := newFakeService(t)
	leg := dialTestLeg(t, f)

	if err := leg.SendToolResult("inv-1", `{"status":"success"}`); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}

	ev := f.next(t)
	if ev["type"] != EventTypeItemCreate {
		t.Fatalf("type = %v, want conversation.item.create", ev["type"])
	}
	item, _ := ev["item"].(map[string]any)
	if item["type"] != ItemTypeFunctionCallOutput {
		t.Errorf("item type = %v, want function_call_output", item["type"])
	}
	if item["call_id"] != "inv-1" {
		t.Errorf("call_id = %v, want inv-1", item["call_id"])
	}
	if item["output"] != `{"status":"success"}` {
		t.Errorf("output = %v", item["output"])
	}
}

func TestReadEvent(t *testing.T) {
	f := newFakeService(t)
	leg := dialTestLeg(t, f)

	var server *websocket.Conn
	select {
	case server = <-f.conn:
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
	}

	err := server.WriteJSON(map[string]any{
		"type":      EventTypeFunctionCallDone,
		"call_id":   "inv-1",
		"name":      "end_call",
		"arguments": `{"reason":"caller_request"}`,
	})
	if err != nil {
		t.Fatalf("server write: %v", err)
	}

	ev, err := leg.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.Type != EventTypeFunctionCallDone || ev.CallID != "inv-1" || ev.Name != "end_call" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Raw) == 0 {
		t.Error("Raw payload not retained")
	}
}

func TestParseServerEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ev *ServerEvent)
		wantErr bool
	}{
		{
			name:    "audio delta",
			payload: `{"type":"response.output_audio.delta","delta":"AAAA"}`,
			check: func(t *testing.T, ev *ServerEvent) {
				if ev.Type != EventTypeAudioDelta || ev.Delta != "AAAA" {
					t.Errorf("event = %+v", ev)
				}
			},
		},
		{
			name:    "error event",
			payload: `{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`,
			check: func(t *testing.T, ev *ServerEvent) {
				if ev.Error == nil || ev.Error.Code != "bad" || ev.Error.Message != "nope" {
					t.Errorf("error payload = %+v", ev.Error)
				}
			},
		},
		{
			name:    "unknown fields tolerated",
			payload: `{"type":"response.done","response":{"id":"resp_1","usage":{"total_tokens":12}}}`,
			check: func(t *testing.T, ev *ServerEvent) {
				if ev.Type != EventTypeResponseDone {
					t.Errorf("type = %q", ev.Type)
				}
				if !json.Valid(ev.Raw) {
					t.Error("Raw is not valid JSON")
				}
			},
		},
		{
			name:    "not json",
			payload: `hang up now`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseServerEvent([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServerEvent: %v", err)
			}
			tt.check(t, ev)
		})
	}
}
