package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrUnknownDepartment indicates a transfer target absent from the
	// session's catalog. Reported to the model; the session continues.
	ErrUnknownDepartment = errors.New("unknown department")

	// ErrDuplicateInvocation indicates a repeated tool-invocation id.
	// Rejected rather than executed twice; the session continues.
	ErrDuplicateInvocation = errors.New("duplicate tool invocation")

	// ErrUnknownTool indicates a tool name that was never offered to the
	// model for this session.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrTerminalActionSet indicates a tool invocation arriving after the
	// call's end was already decided.
	ErrTerminalActionSet = errors.New("terminal action already decided")

	// ErrInvalidArguments indicates tool arguments that fail validation
	// against the advertised schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// LegFailureError reports an unrecoverable socket failure on one leg.
// It forces the session into Terminating; the peer leg is drained and closed.
type LegFailureError struct {
	Leg string // "telephony" or "model"
	Err error
}

func (e *LegFailureError) Error() string {
	return fmt.Sprintf("%s leg failed: %v", e.Leg, e.Err)
}

func (e *LegFailureError) Unwrap() error {
	return e.Err
}
