// Package bridge relays audio and control events between the telephony leg
// and the AI-model leg of one phone call.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/voicebridge/internal/media"
	"github.com/sebas/voicebridge/internal/realtime"
	"github.com/sebas/voicebridge/internal/session"
)

// Config assembles everything one bridge needs.
type Config struct {
	Session  *session.CallSession
	Registry *session.Registry

	Telephony TelephonyLeg
	Model     ModelLeg
	Control   CallController

	// SessionConfig is sent to the model leg on start. Its Tools field is
	// the schema the dispatcher validates invocations against.
	SessionConfig realtime.SessionConfig

	// Greeting is spoken by the model as the first line of the call.
	Greeting string

	// ToolTTL bounds pending tool-call bookkeeping.
	ToolTTL time.Duration
}

// Bridge owns both legs of one call: it pumps audio in both directions
// through the codec adapter and feeds model control events into the tool
// dispatcher. Side effects never leave the two owned legs and the
// call-control client.
type Bridge struct {
	id   string
	sess *session.CallSession
	reg  *session.Registry

	tel        TelephonyLeg
	model      ModelLeg
	dispatcher *Dispatcher

	sessionCfg realtime.SessionConfig
	greeting   string

	// first frame seen per direction; both together move Answered -> Streaming
	inboundSeen  atomic.Bool
	outboundSeen atomic.Bool

	// Statistics
	framesIn      atomic.Int64 // telephony -> model
	framesOut     atomic.Int64 // model -> telephony
	framesDropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once

	callbackMu          sync.Mutex
	terminatedCallbacks []func(cause session.TerminationCause)
}

// New creates a bridge for one call session.
func New(cfg Config) (*Bridge, error) {
	dispatcher, err := NewDispatcher(cfg.Session, cfg.Control, cfg.Model, cfg.SessionConfig.Tools, cfg.ToolTTL)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		id:         "bridge-" + uuid.New().String(),
		sess:       cfg.Session,
		reg:        cfg.Registry,
		tel:        cfg.Telephony,
		model:      cfg.Model,
		dispatcher: dispatcher,
		sessionCfg: cfg.SessionConfig,
		greeting:   cfg.Greeting,
		done:       make(chan struct{}),
	}, nil
}

// ID returns the unique identifier for this bridge.
func (b *Bridge) ID() string {
	return b.id
}

// OnTerminated registers a callback invoked once when the bridge closes.
// Registered after closing, the callback fires immediately.
func (b *Bridge) OnTerminated(fn func(cause session.TerminationCause)) {
	b.callbackMu.Lock()
	defer b.callbackMu.Unlock()

	select {
	case <-b.done:
		fn(b.sess.Cause())
	default:
		b.terminatedCallbacks = append(b.terminatedCallbacks, fn)
	}
}

// Done returns a channel closed when the bridge has fully torn down.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Run drives the call from Answered to Closed: it configures the model
// session, queues the greeting, relays audio both ways and waits for a
// termination trigger. It blocks until teardown completes and always leaves
// both legs closed and the registry entry removed.
func (b *Bridge) Run(ctx context.Context) {
	slog.Info("[Bridge] Starting",
		"bridge_id", b.id,
		"call_id", b.sess.CallID,
		"tools", len(b.sessionCfg.Tools),
	)

	if err := b.model.SendSessionConfig(b.sessionCfg); err != nil {
		slog.Error("[Bridge] Session configuration failed", "call_id", b.sess.CallID, "error", err)
		b.teardown(session.CauseLegFailure)
		return
	}
	if err := b.model.CreateResponse(b.greeting); err != nil {
		slog.Error("[Bridge] Greeting request failed", "call_id", b.sess.CallID, "error", err)
		b.teardown(session.CauseLegFailure)
		return
	}

	errCh := make(chan error, 2)
	go b.telephonyPump(errCh)
	go b.modelPump(ctx, errCh)

	select {
	case <-ctx.Done():
		b.teardown(session.CauseShutdown)
	case cause := <-b.sess.TerminateRequested():
		b.teardown(cause)
	case err := <-errCh:
		var legErr *LegFailureError
		if errors.As(err, &legErr) {
			slog.Warn("[Bridge] Leg failed",
				"call_id", b.sess.CallID,
				"leg", legErr.Leg,
				"error", legErr.Err,
			)
		}
		b.teardown(session.CauseLegFailure)
	}
}

// telephonyPump relays caller audio to the model: provider frame -> codec
// decode -> audio-append event. Runs until the telephony leg fails or closes.
func (b *Bridge) telephonyPump(errCh chan<- error) {
	for {
		frame, err := b.tel.ReadFrame()
		if err != nil {
			errCh <- &LegFailureError{Leg: "telephony", Err: err}
			return
		}

		b.inboundSeen.Store(true)
		b.maybeStream()

		// Frames outside Streaming (and anything after the terminal
		// action) are discarded without error.
		if !b.sess.CanForward() {
			b.framesDropped.Add(1)
			continue
		}

		pcm, err := media.Decode(frame)
		if err != nil {
			// Malformed frame: drop it, the stream continues.
			b.framesDropped.Add(1)
			slog.Debug("[Bridge] Dropping malformed provider frame",
				"call_id", b.sess.CallID,
				"error", err,
			)
			continue
		}

		if err := b.model.AppendAudio(pcm); err != nil {
			errCh <- &LegFailureError{Leg: "model", Err: err}
			return
		}
		b.framesIn.Add(1)
	}
}

// modelPump relays model audio to the caller and routes control events to
// the dispatcher. Runs until the model leg fails or closes.
func (b *Bridge) modelPump(ctx context.Context, errCh chan<- error) {
	assembler := media.NewFrameAssembler()

	for {
		ev, err := b.model.ReadEvent()
		if err != nil {
			errCh <- &LegFailureError{Leg: "model", Err: err}
			return
		}

		switch ev.Type {
		case realtime.EventTypeAudioDelta:
			if err := b.relayModelAudio(ev.Delta, assembler); err != nil {
				errCh <- err
				return
			}

		case realtime.EventTypeAudioDone:
			// Marker lets the provider side correlate utterance ends.
			if err := b.tel.WriteMark("audio_end"); err != nil {
				errCh <- &LegFailureError{Leg: "telephony", Err: err}
				return
			}

		case realtime.EventTypeFunctionCallDone:
			if err := b.dispatcher.Dispatch(ctx, ev.CallID, ev.Name, ev.Arguments); err != nil {
				errCh <- err
				return
			}

		case realtime.EventTypeTranscriptDelta:
			if ev.Delta != "" {
				slog.Debug("[Bridge] Model transcript", "call_id", b.sess.CallID, "text", ev.Delta)
			}

		case realtime.EventTypeSpeechStarted:
			slog.Debug("[Bridge] Caller started speaking", "call_id", b.sess.CallID)

		case realtime.EventTypeSpeechStopped:
			slog.Debug("[Bridge] Caller stopped speaking", "call_id", b.sess.CallID)

		case realtime.EventTypeSessionCreated, realtime.EventTypeSessionUpdated:
			slog.Debug("[Bridge] Model session ready", "call_id", b.sess.CallID, "event", ev.Type)

		case realtime.EventTypeResponseCreated:
			slog.Debug("[Bridge] Model response started", "call_id", b.sess.CallID)

		case realtime.EventTypeResponseDone:
			slog.Debug("[Bridge] Model response complete", "call_id", b.sess.CallID)

		case realtime.EventTypeError:
			if ev.Error != nil {
				slog.Error("[Bridge] Model error event",
					"call_id", b.sess.CallID,
					"code", ev.Error.Code,
					"message", ev.Error.Message,
				)
			} else {
				slog.Error("[Bridge] Model error event", "call_id", b.sess.CallID, "raw", string(ev.Raw))
			}

		default:
			slog.Debug("[Bridge] Ignoring model event", "call_id", b.sess.CallID, "event", ev.Type)
		}
	}
}

// relayModelAudio encodes one model audio delta into provider frames.
func (b *Bridge) relayModelAudio(delta string, assembler *media.FrameAssembler) error {
	if delta == "" {
		return nil
	}

	if b.terminalSet() {
		// The call's end is decided: no further audio reaches the caller.
		b.framesDropped.Add(1)
		return nil
	}

	pcm, err := base64.StdEncoding.DecodeString(delta)
	if err != nil {
		b.framesDropped.Add(1)
		slog.Debug("[Bridge] Dropping undecodable model delta", "call_id", b.sess.CallID, "error", err)
		return nil
	}

	assembler.Push(pcm)
	for {
		pcmFrame, ok := assembler.Next()
		if !ok {
			return nil
		}
		frame, err := media.Encode(pcmFrame)
		if err != nil {
			b.framesDropped.Add(1)
			continue
		}
		if err := b.tel.WriteFrame(frame); err != nil {
			return &LegFailureError{Leg: "telephony", Err: err}
		}
		b.framesOut.Add(1)

		b.outboundSeen.Store(true)
		b.maybeStream()
	}
}

// maybeStream moves Answered -> Streaming once audio has flowed in both
// directions.
func (b *Bridge) maybeStream() {
	if b.inboundSeen.Load() && b.outboundSeen.Load() {
		b.sess.TransitionTo(session.StateStreaming, session.CauseNone)
	}
}

func (b *Bridge) terminalSet() bool {
	_, set := b.sess.TerminalAction()
	return set
}

// teardown closes both legs exactly once, discards pending tool calls,
// removes the session from the registry and fires termination callbacks.
func (b *Bridge) teardown(cause session.TerminationCause) {
	b.closeOnce.Do(func() {
		if cause == session.CauseLegFailure {
			b.sess.Fail()
		} else {
			b.sess.TransitionTo(session.StateTerminating, cause)
		}

		// Writes on both legs are synchronous, so once the pumps observe
		// the closed sockets there is no queued outbound data left to
		// drain. Closing unblocks any pump still waiting on a read.
		_ = b.tel.Close()
		_ = b.model.Close()

		b.sess.TransitionTo(session.StateClosed, cause)
		b.sess.Release()
		b.reg.Remove(b.sess.CallID)

		slog.Info("[Bridge] Closed",
			"bridge_id", b.id,
			"call_id", b.sess.CallID,
			"cause", b.sess.Cause().String(),
			"frames_in", b.framesIn.Load(),
			"frames_out", b.framesOut.Load(),
			"frames_dropped", b.framesDropped.Load(),
		)

		b.callbackMu.Lock()
		callbacks := b.terminatedCallbacks
		b.terminatedCallbacks = nil
		b.callbackMu.Unlock()

		close(b.done)
		for _, fn := range callbacks {
			fn(b.sess.Cause())
		}
	})
}
