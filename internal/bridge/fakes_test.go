package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/sebas/voicebridge/internal/catalog"
	"github.com/sebas/voicebridge/internal/realtime"
)

var errLegClosed = errors.New("leg closed")

type transferCall struct {
	CallID  string
	To      string
	Headers []catalog.Header
}

type fakeController struct {
	mu          sync.Mutex
	hangups     []string
	transfers   []transferCall
	hangupErr   error
	transferErr error
}

func (c *fakeController) Hangup(_ context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hangupErr != nil {
		return c.hangupErr
	}
	c.hangups = append(c.hangups, callID)
	return nil
}

func (c *fakeController) Transfer(_ context.Context, callID, to string, headers []catalog.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transferErr != nil {
		return c.transferErr
	}
	c.transfers = append(c.transfers, transferCall{CallID: callID, To: to, Headers: headers})
	return nil
}

func (c *fakeController) hangupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hangups)
}

func (c *fakeController) transferCalls() []transferCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transferCall(nil), c.transfers...)
}

type toolResultSent struct {
	InvocationID string
	Output       string
}

type fakeModelLeg struct {
	mu         sync.Mutex
	configs    []realtime.SessionConfig
	configErr  error
	audio      [][]byte
	responses  []string
	results    []toolResultSent
	resultErr  error
	closed     bool
	events     chan *realtime.ServerEvent
}

func newFakeModelLeg() *fakeModelLeg {
	return &fakeModelLeg{events: make(chan *realtime.ServerEvent, 16)}
}

func (l *fakeModelLeg) SendSessionConfig(cfg realtime.SessionConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.configErr != nil {
		return l.configErr
	}
	l.configs = append(l.configs, cfg)
	return nil
}

func (l *fakeModelLeg) AppendAudio(pcm []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.audio = append(l.audio, append([]byte(nil), pcm...))
	return nil
}

func (l *fakeModelLeg) CreateResponse(instructions string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, instructions)
	return nil
}

func (l *fakeModelLeg) SendToolResult(callID, output string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resultErr != nil {
		return l.resultErr
	}
	l.results = append(l.results, toolResultSent{InvocationID: callID, Output: output})
	return nil
}

func (l *fakeModelLeg) ReadEvent() (*realtime.ServerEvent, error) {
	ev, ok := <-l.events
	if !ok {
		return nil, errLegClosed
	}
	return ev, nil
}

func (l *fakeModelLeg) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

func (l *fakeModelLeg) sentResults() []toolResultSent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]toolResultSent(nil), l.results...)
}

func (l *fakeModelLeg) createResponses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.responses...)
}

func (l *fakeModelLeg) appendedAudio() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.audio...)
}

func (l *fakeModelLeg) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeTelephonyLeg struct {
	mu      sync.Mutex
	frames  chan []byte
	written [][]byte
	marks   []string
	closed  bool
}

func newFakeTelephonyLeg() *fakeTelephonyLeg {
	return &fakeTelephonyLeg{frames: make(chan []byte, 16)}
}

func (l *fakeTelephonyLeg) ReadFrame() ([]byte, error) {
	frame, ok := <-l.frames
	if !ok {
		return nil, errLegClosed
	}
	return frame, nil
}

func (l *fakeTelephonyLeg) WriteFrame(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = append(l.written, append([]byte(nil), payload...))
	return nil
}

func (l *fakeTelephonyLeg) WriteMark(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, name)
	return nil
}

func (l *fakeTelephonyLeg) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.frames)
	}
	return nil
}

func (l *fakeTelephonyLeg) writtenFrames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.written...)
}

func (l *fakeTelephonyLeg) writtenMarks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.marks...)
}

func (l *fakeTelephonyLeg) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func testCatalog() catalog.Catalog {
	return catalog.Catalog{
		"sales": {
			Name:   "sales",
			SIPURI: "sip:sales@pbx.example.com",
			Headers: []catalog.Header{
				{Name: "X-Department", Value: "sales"},
			},
		},
		"support": {
			Name:   "support",
			SIPURI: "sip:support@pbx.example.com",
		},
	}
}
