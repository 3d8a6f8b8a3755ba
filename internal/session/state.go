// Package session provides the per-call state machine and the process-wide
// registry of active call sessions.
package session

import "fmt"

// CallState represents the current state of a call session.
type CallState int

const (
	// StateAnswered indicates the call is answered and both legs are open,
	// but no audio has been exchanged yet.
	StateAnswered CallState = iota
	// StateStreaming indicates audio is actively relayed in both directions.
	StateStreaming
	// StateError indicates an unrecoverable leg failure was observed.
	// Transitions immediately to Terminating.
	StateError
	// StateTerminating indicates a terminal action was decided and in-flight
	// audio is draining.
	StateTerminating
	// StateClosed indicates both legs are released. Terminal.
	StateClosed
)

// String returns the string representation of CallState.
func (s CallState) String() string {
	switch s {
	case StateAnswered:
		return "Answered"
	case StateStreaming:
		return "Streaming"
	case StateError:
		return "Error"
	case StateTerminating:
		return "Terminating"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsTerminal returns true if the state permits no further transitions.
func (s CallState) IsTerminal() bool {
	return s == StateClosed
}

// TerminationCause indicates why a session was terminated.
type TerminationCause int

const (
	// CauseNone indicates no termination has occurred.
	CauseNone TerminationCause = iota
	// CauseModelEnd indicates the model invoked the end_call tool.
	CauseModelEnd
	// CauseModelTransfer indicates the model invoked the transfer_call tool.
	CauseModelTransfer
	// CauseProviderHangup indicates a hangup notification from the
	// telephony provider.
	CauseProviderHangup
	// CauseLegFailure indicates either leg closed or broke unexpectedly.
	CauseLegFailure
	// CauseShutdown indicates local process shutdown.
	CauseShutdown
)

// String returns the string representation of TerminationCause.
func (c TerminationCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseModelEnd:
		return "model_end"
	case CauseModelTransfer:
		return "model_transfer"
	case CauseProviderHangup:
		return "provider_hangup"
	case CauseLegFailure:
		return "leg_failure"
	case CauseShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// validTransition reports whether the state machine allows from -> to.
// Re-entering the occupied state is handled by the caller as a no-op.
func validTransition(from, to CallState) bool {
	switch from {
	case StateAnswered:
		return to == StateStreaming || to == StateError || to == StateTerminating
	case StateStreaming:
		return to == StateError || to == StateTerminating
	case StateError:
		return to == StateTerminating
	case StateTerminating:
		return to == StateClosed
	case StateClosed:
		return false
	default:
		return false
	}
}
