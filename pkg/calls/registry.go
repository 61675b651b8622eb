// Package calls tracks in-flight outbound calls and drives their
// lifecycle from provider webhook events. The registry is the only
// state shared between the webhook handler, the media-stream handler
// and per-call timeout tasks; every operation is a single locked map
// step with no blocking work under the lock.
package calls

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/probecall/probecall/pkg/bridge"
	"github.com/probecall/probecall/pkg/logging"
	"github.com/probecall/probecall/pkg/scenario"
)

// idPrefixLen caps how many leading characters the fallback match
// compares. The provider has been seen formatting the id with
// inconsistent truncation between the call-placement response and the
// stream-start notification; exact match stays primary and this shim
// only kicks in when it misses.
const idPrefixLen = 16

// Call is one in-flight outbound call. The bridge reference is set at
// most once, when the media stream attaches.
type Call struct {
	ControlID string
	TraceID   string
	Scenario  scenario.Scenario
	StartedAt time.Time
	Bridge    *bridge.Bridge

	cancelTimeout context.CancelFunc
}

// Registry maps call control ids to call state for the process lifetime.
type Registry struct {
	mu     sync.Mutex
	calls  map[string]*Call
	logger *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		calls:  make(map[string]*Call),
		logger: logging.NewComponentLogger(slog.Default(), "registry"),
	}
}

// Register creates a pending record for a freshly placed call. A
// duplicate id replaces the old record with a warning; the provider
// never reuses ids within a process lifetime under normal operation.
func (r *Registry) Register(callControlID string, scn scenario.Scenario) *Call {
	call := &Call{
		ControlID: callControlID,
		TraceID:   uuid.NewString(),
		Scenario:  scn,
		StartedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	if _, exists := r.calls[callControlID]; exists {
		r.logger.Warn("replacing existing call record", slog.String("call_control_id", callControlID))
	}
	r.calls[callControlID] = call
	r.mu.Unlock()
	return call
}

// Resolve finds a call by id, trying exact match first and falling back
// to a prefix comparison in both directions.
func (r *Registry) Resolve(callControlID string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, id := r.resolveLocked(callControlID)
	if call == nil {
		return nil, false
	}
	if id != callControlID {
		r.logger.Warn("call id resolved via prefix fallback",
			slog.String("requested", callControlID), slog.String("matched", id))
	}
	return call, true
}

// AttachBridge sets the bridge on an existing record. Unknown ids are a
// logged no-op; the stream-start notification can race registry
// teardown. Returns the canonical id the record is registered under.
func (r *Registry) AttachBridge(callControlID string, b *bridge.Bridge) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, id := r.resolveLocked(callControlID)
	if call == nil {
		r.logger.Warn("attach for unknown call", slog.String("call_control_id", callControlID))
		return "", false
	}
	if call.Bridge != nil {
		r.logger.Warn("bridge already attached", slog.String("call_control_id", id))
		return id, false
	}
	call.Bridge = b
	return id, true
}

// Remove deletes and returns the record so the teardown path owns it
// exactly once.
func (r *Registry) Remove(callControlID string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, id := r.resolveLocked(callControlID)
	if call == nil {
		return nil, false
	}
	delete(r.calls, id)
	return call, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *Registry) setCancelTimeout(callControlID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if call, _ := r.resolveLocked(callControlID); call != nil {
		call.cancelTimeout = cancel
	}
}

func (r *Registry) resolveLocked(callControlID string) (*Call, string) {
	if call, ok := r.calls[callControlID]; ok {
		return call, callControlID
	}
	for id, call := range r.calls {
		if idPrefixMatch(id, callControlID) {
			return call, id
		}
	}
	return nil, ""
}

// idPrefixMatch reports whether two ids agree on their leading
// characters, comparing at most idPrefixLen of each so a truncated id
// still finds its full form in either direction.
func idPrefixMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) > idPrefixLen {
		a = a[:idPrefixLen]
	}
	if len(b) > idPrefixLen {
		b = b[:idPrefixLen]
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
