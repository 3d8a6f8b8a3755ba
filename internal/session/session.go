package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/voicebridge/internal/catalog"
	"github.com/sebas/voicebridge/internal/store"
)

// TerminalKind is the decided end-state of a call.
type TerminalKind int

const (
	// ActionEnd hangs up the call.
	ActionEnd TerminalKind = iota
	// ActionTransfer hands the call to a configured department.
	ActionTransfer
)

// String returns the string representation of TerminalKind.
func (k TerminalKind) String() string {
	switch k {
	case ActionEnd:
		return "end"
	case ActionTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// TerminalAction records the decided end of a call. Once set on a session it
// is immutable and halts all further audio forwarding.
type TerminalAction struct {
	Kind       TerminalKind
	Department string // set for transfers
	Reason     string
}

// PendingToolCall tracks one in-flight model tool invocation from request
// until its result is returned to the model leg.
type PendingToolCall struct {
	Name      string
	Arguments string
	IssuedAt  time.Time
}

// CallSession is the per-call shared state: identity, state machine position,
// department catalog snapshot and pending tool-call bookkeeping. The media
// bridge and tool dispatcher for the call are its only mutators.
type CallSession struct {
	CallID    string
	Catalog   catalog.Catalog
	CreatedAt time.Time

	// PendingTools maps tool-invocation id to in-flight request metadata.
	// Entries are bounded by TTL so an unconsumed ack cannot leak.
	PendingTools *store.TTLStore[string, PendingToolCall]

	mu       sync.Mutex
	state    CallState
	cause    TerminationCause
	terminal *TerminalAction

	terminateOnce sync.Once
	terminateCh   chan TerminationCause
}

// New creates a session in the Answered state with an immutable catalog
// snapshot. toolTTL bounds how long an unacknowledged tool invocation is
// tracked.
func New(callID string, cat catalog.Catalog, toolTTL time.Duration) *CallSession {
	s := &CallSession{
		CallID:       callID,
		Catalog:      cat,
		CreatedAt:    time.Now(),
		PendingTools: store.New[string, PendingToolCall](toolTTL),
		state:        StateAnswered,
		terminateCh:  make(chan TerminationCause, 1),
	}
	s.PendingTools.SetOnEvict(func(id string, call PendingToolCall) {
		slog.Warn("[Session] Discarding unacknowledged tool call",
			"call_id", callID,
			"invocation_id", id,
			"tool", call.Name,
			"age", time.Since(call.IssuedAt).String(),
		)
	})
	return s
}

// State returns the current state.
func (s *CallSession) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cause returns the recorded termination cause.
func (s *CallSession) Cause() TerminationCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// TransitionTo moves the state machine. Returns true if the state changed.
// Re-entering the occupied state is a no-op, not an error; invalid
// transitions (including any transition out of Closed) are ignored.
func (s *CallSession) TransitionTo(to CallState, cause TerminationCause) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == to {
		return false
	}
	if !validTransition(s.state, to) {
		slog.Debug("[Session] Ignoring invalid transition",
			"call_id", s.CallID,
			"from", s.state.String(),
			"to", to.String(),
		)
		return false
	}

	from := s.state
	s.state = to
	if cause != CauseNone && s.cause == CauseNone {
		s.cause = cause
	}

	slog.Info("[Session] State changed",
		"call_id", s.CallID,
		"from", from.String(),
		"to", to.String(),
		"cause", s.cause.String(),
	)
	return true
}

// Fail records an unrecoverable leg failure: the session passes through the
// Error state and lands in Terminating with cause leg_failure.
func (s *CallSession) Fail() {
	if s.TransitionTo(StateError, CauseLegFailure) {
		s.TransitionTo(StateTerminating, CauseLegFailure)
	}
}

// SetTerminalAction records the decided end of the call. Returns false if a
// terminal action was already set; the first action wins and is immutable.
func (s *CallSession) SetTerminalAction(action TerminalAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal != nil {
		return false
	}
	s.terminal = &action
	return true
}

// TerminalAction returns the recorded terminal action, if any.
func (s *CallSession) TerminalAction() (TerminalAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal == nil {
		return TerminalAction{}, false
	}
	return *s.terminal, true
}

// CanForward reports whether audio may be relayed: the session must be
// Streaming and no terminal action decided.
func (s *CallSession) CanForward() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStreaming && s.terminal == nil
}

// RequestTerminate asks the owning bridge to tear the session down. Safe to
// call from any goroutine and idempotent; only the first cause is delivered.
func (s *CallSession) RequestTerminate(cause TerminationCause) {
	s.terminateOnce.Do(func() {
		s.terminateCh <- cause
	})
}

// TerminateRequested returns the channel the owning bridge waits on for
// externally requested teardown (provider hangup, shutdown, tool actions).
func (s *CallSession) TerminateRequested() <-chan TerminationCause {
	return s.terminateCh
}

// Release discards pending tool calls and stops their bookkeeping.
// Called exactly once by the owning bridge during final teardown.
func (s *CallSession) Release() {
	s.PendingTools.Clear()
	s.PendingTools.Close()
}
