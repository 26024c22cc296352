package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gostudio/domain/core"
	"gostudio/domain/event"
	"gostudio/ports"
)

// ============================================================================
// IN-MEMORY SESSION STORE
// ============================================================================

// InMemorySessionStore keeps snapshots in a map; used by service and API tests
type InMemorySessionStore struct {
	snapshots map[core.SessionID]ports.SessionSnapshot
	saves     int
	mu        sync.RWMutex
}

// NewInMemorySessionStore creates an empty store
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		snapshots: make(map[core.SessionID]ports.SessionSnapshot),
	}
}

// Save stores a copy of the snapshot
func (s *InMemorySessionStore) Save(ctx context.Context, snap ports.SessionSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot without session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Data = append([]byte(nil), snap.Data...)
	s.snapshots[snap.ID] = snap
	s.saves++
	return nil
}

// Load returns a copy of the stored snapshot
func (s *InMemorySessionStore) Load(ctx context.Context, id core.SessionID) (*ports.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return &snap, nil
}

// Delete removes the snapshot if present
func (s *InMemorySessionStore) Delete(ctx context.Context, id core.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

// IDs lists stored session ids in sorted order
func (s *InMemorySessionStore) IDs() []core.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]core.SessionID, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Saves counts successful Save calls
func (s *InMemorySessionStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// ============================================================================
// RECORDING EVENT SINK
// ============================================================================

// RecordingSink captures every published event in order
type RecordingSink struct {
	events []event.Event
	mu     sync.Mutex
}

// NewRecordingSink creates an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Publish records e
func (r *RecordingSink) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far
func (r *RecordingSink) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *RecordingSink) Types() []event.Type {
	events := r.Events()
	out := make([]event.Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// OfType returns the recorded events of one type
func (r *RecordingSink) OfType(typ event.Type) []event.Event {
	var out []event.Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// SCRIPTED REASONER
// ============================================================================

// ScriptedReasoner answers reasoning requests from a fixed script. Tasks without a
// scripted response fail, which exercises the template fallback.
type ScriptedReasoner struct {
	Responses map[ports.ReasoningTask]string
	Err       error // returned for every task when set

	calls []ports.ReasoningRequest
	mu    sync.Mutex
}

// NewScriptedReasoner creates a reasoner with the given responses
func NewScriptedReasoner(responses map[ports.ReasoningTask]string) *ScriptedReasoner {
	if responses == nil {
		responses = make(map[ports.ReasoningTask]string)
	}
	return &ScriptedReasoner{Responses: responses}
}

// Reason returns the scripted response for req.Task
func (r *ScriptedReasoner) Reason(ctx context.Context, req ports.ReasoningRequest) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.Err != nil {
		return "", r.Err
	}
	resp, ok := r.Responses[req.Task]
	if !ok {
		return "", fmt.Errorf("no scripted response for %s", req.Task)
	}
	return resp, nil
}

// Calls returns the requests received so far
func (r *ScriptedReasoner) Calls() []ports.ReasoningRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.ReasoningRequest(nil), r.calls...)
}
