package session

import (
	"errors"
	"log/slog"
	"sync"
)

// Sentinel errors for registry misuse. These indicate programming-level
// faults and are surfaced to callers, never swallowed.
var (
	// ErrDuplicateSession indicates a session is already registered for the call id.
	ErrDuplicateSession = errors.New("session already registered for call")

	// ErrSessionNotFound indicates no session is registered for the call id.
	ErrSessionNotFound = errors.New("session not found")
)

// Registry is the process-wide mapping from call id to active session.
// It is the only cross-call shared state; every operation is a short
// mutex-guarded map mutation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*CallSession),
	}
}

// Register adds a session under its call id.
// Returns ErrDuplicateSession if the call id is already present.
func (r *Registry) Register(sess *CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.CallID]; exists {
		return ErrDuplicateSession
	}
	r.sessions[sess.CallID] = sess

	slog.Info("[Registry] Session registered",
		"call_id", sess.CallID,
		"active", len(r.sessions),
	)
	return nil
}

// Lookup returns the session for a call id.
// Returns ErrSessionNotFound if absent.
func (r *Registry) Lookup(callID string) (*CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove deletes the session for a call id. Idempotent: removing an absent
// id is a no-op.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[callID]; !ok {
		return
	}
	delete(r.sessions, callID)

	slog.Info("[Registry] Session removed",
		"call_id", callID,
		"active", len(r.sessions),
	)
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll requests teardown of every active session. Used at shutdown;
// each owning bridge removes its own entry as it closes.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*CallSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	for _, sess := range sessions {
		sess.RequestTerminate(CauseShutdown)
	}
}
