package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sebas/voicebridge/internal/realtime"
	"github.com/sebas/voicebridge/internal/session"
)

// toolResult is the structured payload returned to the model for every
// tool invocation.
type toolResult struct {
	Status  string `json:"status"` // "success" or "failed"
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// endCallArgs are the validated arguments of end_call.
type endCallArgs struct {
	Reason string `json:"reason"`
}

// transferCallArgs are the validated arguments of transfer_call.
type transferCallArgs struct {
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

// Dispatcher interprets model-issued tool invocations for one session,
// performs the corresponding call-control side effect and returns a
// structured result to the model leg.
type Dispatcher struct {
	sess    *session.CallSession
	control CallController
	model   ModelLeg
	ttl     time.Duration

	// compiled from the exact tool schema advertised to the model
	schemas map[string]*jsonschema.Schema
}

// NewDispatcher creates a dispatcher validating invocations against the
// given advertised tool set.
func NewDispatcher(sess *session.CallSession, control CallController, model ModelLeg, tools []realtime.Tool, ttl time.Duration) (*Dispatcher, error) {
	schemas := make(map[string]*jsonschema.Schema, len(tools))
	for _, tool := range tools {
		raw, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", tool.Name, err)
		}
		compiled, err := jsonschema.CompileString(tool.Name+".schema.json", string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", tool.Name, err)
		}
		schemas[tool.Name] = compiled
	}

	return &Dispatcher{
		sess:    sess,
		control: control,
		model:   model,
		ttl:     ttl,
		schemas: schemas,
	}, nil
}

// Dispatch handles one tool invocation. Per-invocation failures (unknown
// department, rejected command, duplicate id, bad arguments) are reported to
// the model as failure results and leave the session streaming; only a model
// leg write failure is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, invocationID, name, arguments string) error {
	if invocationID == "" {
		slog.Warn("[Dispatcher] Tool invocation without id", "call_id", d.sess.CallID, "tool", name)
		return nil
	}

	slog.Info("[Dispatcher] Tool invoked",
		"call_id", d.sess.CallID,
		"invocation_id", invocationID,
		"tool", name,
	)

	pending := session.PendingToolCall{
		Name:      name,
		Arguments: arguments,
		IssuedAt:  time.Now(),
	}
	if !d.sess.PendingTools.PutIfAbsent(invocationID, pending, d.ttl) {
		slog.Warn("[Dispatcher] Duplicate invocation id",
			"call_id", d.sess.CallID,
			"invocation_id", invocationID,
		)
		return d.failKeepPending(invocationID, ErrDuplicateInvocation,
			"this tool invocation was already received")
	}

	schema, offered := d.schemas[name]
	if !offered {
		return d.fail(invocationID, ErrUnknownTool,
			fmt.Sprintf("the %s tool is not available on this call", name))
	}

	var decoded any
	if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
		return d.fail(invocationID, ErrInvalidArguments, "arguments are not valid JSON")
	}
	if err := schema.Validate(decoded); err != nil {
		return d.fail(invocationID, ErrInvalidArguments, err.Error())
	}

	if _, set := d.sess.TerminalAction(); set {
		return d.fail(invocationID, ErrTerminalActionSet, "the call is already ending")
	}

	switch name {
	case ToolEndCall:
		var args endCallArgs
		_ = json.Unmarshal([]byte(arguments), &args)
		return d.endCall(ctx, invocationID, args)
	case ToolTransferCall:
		var args transferCallArgs
		_ = json.Unmarshal([]byte(arguments), &args)
		return d.transferCall(ctx, invocationID, args)
	default:
		return d.fail(invocationID, ErrUnknownTool,
			fmt.Sprintf("the %s tool is not available on this call", name))
	}
}

func (d *Dispatcher) endCall(ctx context.Context, invocationID string, args endCallArgs) error {
	if err := d.control.Hangup(ctx, d.sess.CallID); err != nil {
		slog.Error("[Dispatcher] Hangup command failed",
			"call_id", d.sess.CallID,
			"error", err,
		)
		return d.fail(invocationID, err, "the call could not be ended, please continue the conversation")
	}

	d.sess.SetTerminalAction(session.TerminalAction{
		Kind:   session.ActionEnd,
		Reason: args.Reason,
	})

	slog.Info("[Dispatcher] Call ended by model",
		"call_id", d.sess.CallID,
		"reason", args.Reason,
	)

	err := d.succeed(invocationID, goodbyeMessage(args.Reason))
	d.sess.RequestTerminate(session.CauseModelEnd)
	return err
}

func (d *Dispatcher) transferCall(ctx context.Context, invocationID string, args transferCallArgs) error {
	dept, found := d.sess.Catalog.Lookup(args.Department)
	if !found {
		available := strings.Join(d.sess.Catalog.Names(), ", ")
		slog.Warn("[Dispatcher] Unknown transfer department",
			"call_id", d.sess.CallID,
			"department", args.Department,
			"available", available,
		)
		return d.fail(invocationID, ErrUnknownDepartment,
			fmt.Sprintf("the %s department is not configured; available departments: %s", args.Department, available))
	}

	if err := d.control.Transfer(ctx, d.sess.CallID, dept.SIPURI, dept.Headers); err != nil {
		slog.Error("[Dispatcher] Transfer command failed",
			"call_id", d.sess.CallID,
			"department", args.Department,
			"error", err,
		)
		return d.fail(invocationID, err,
			fmt.Sprintf("the transfer to %s failed, the caller is still on the line", args.Department))
	}

	d.sess.SetTerminalAction(session.TerminalAction{
		Kind:       session.ActionTransfer,
		Department: args.Department,
		Reason:     args.Reason,
	})

	slog.Info("[Dispatcher] Call transferred",
		"call_id", d.sess.CallID,
		"department", args.Department,
		"target", dept.SIPURI,
	)

	err := d.succeed(invocationID,
		fmt.Sprintf("transferring the call to the %s department now", args.Department))
	d.sess.RequestTerminate(session.CauseModelTransfer)
	return err
}

// succeed sends a success result and removes the pending entry.
func (d *Dispatcher) succeed(invocationID, message string) error {
	defer d.sess.PendingTools.Delete(invocationID)
	return d.sendResult(invocationID, toolResult{
		Status:  "success",
		Message: message,
	})
}

// fail sends a failure result, removes the pending entry, and prompts the
// model to respond so it can apologize or retry.
func (d *Dispatcher) fail(invocationID string, cause error, message string) error {
	defer d.sess.PendingTools.Delete(invocationID)
	return d.failureResult(invocationID, cause, message)
}

// failKeepPending is fail without touching the pending entry; used for
// duplicate ids so the original invocation's bookkeeping survives.
func (d *Dispatcher) failKeepPending(invocationID string, cause error, message string) error {
	return d.failureResult(invocationID, cause, message)
}

func (d *Dispatcher) failureResult(invocationID string, cause error, message string) error {
	if err := d.sendResult(invocationID, toolResult{
		Status:  "failed",
		Message: message,
		Error:   cause.Error(),
	}); err != nil {
		return err
	}
	if err := d.model.CreateResponse(""); err != nil {
		return &LegFailureError{Leg: "model", Err: err}
	}
	return nil
}

func (d *Dispatcher) sendResult(invocationID string, result toolResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	if err := d.model.SendToolResult(invocationID, string(payload)); err != nil {
		return &LegFailureError{Leg: "model", Err: err}
	}
	return nil
}

func goodbyeMessage(reason string) string {
	switch reason {
	case "caller_request":
		return "the call is ending at the caller's request, say goodbye is not needed"
	case "escalation_needed":
		return "the call is ending for escalation, the caller will be contacted"
	default:
		return "the call is ending, the conversation is complete"
	}
}
