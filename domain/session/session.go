package session

import (
	"encoding/json"
	"fmt"
	"time"

	"gostudio/domain/core"
)

// Role tags a transcript message
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one append-only transcript entry
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the root aggregate of one guided analysis.
// INVARIANTS:
// - Current is the last History entry; there is exactly one active phase
// - the profile in every payload describes the table of the same payload
// - a terminated session sits in ERROR and accepts no further transitions
type Session struct {
	ID         core.SessionID `json:"id"`
	Current    Tagged         `json:"current"`
	History    []Tagged       `json:"history"`
	Errors     []ErrorRecord  `json:"errors"`
	Transcript []Message      `json:"transcript"`
	Terminated bool           `json:"terminated"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// New starts a session in LANDING
func New(id core.SessionID, now time.Time) *Session {
	landing := Tagged{Payload: &Landing{}}
	return &Session{
		ID:         id,
		Current:    landing,
		History:    []Tagged{landing},
		Errors:     []ErrorRecord{},
		Transcript: []Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Phase is derived from the current payload
func (s *Session) Phase() Phase {
	if s.Current.Payload == nil {
		return PhaseLanding
	}
	return s.Current.Phase()
}

// Apply moves the session along the transition table. next must be the payload of
// the phase the (current phase, event) pair leads to, and must satisfy its guard.
// Re-entering the current phase replaces the last history entry.
func (s *Session) Apply(ev Event, next Payload, now time.Time) error {
	if s.Terminated {
		return fmt.Errorf("%w: session %s", core.ErrSessionTerminated, s.ID)
	}
	from := s.Phase()
	r, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return &core.PhaseTransitionError{From: string(from), Event: string(ev)}
	}
	if next == nil || next.Phase() != r.to {
		return &core.PhaseTransitionError{From: string(from), Event: string(ev), Reason: fmt.Sprintf("a %s payload is required", r.to)}
	}
	if r.guard != nil {
		if err := r.guard(s, next); err != nil {
			return &core.PhaseTransitionError{From: string(from), Event: string(ev), Reason: err.Error()}
		}
	}
	if err := checkConsistency(next); err != nil {
		return err
	}

	entry := Tagged{Payload: next}
	if r.to == from {
		s.History[len(s.History)-1] = entry
	} else {
		s.History = append(s.History, entry)
	}
	s.Current = entry
	s.UpdatedAt = now
	return nil
}

// Fail records err in the error log and enters ERROR. Unrecoverable errors
// terminate the session.
func (s *Session) Fail(err error, now time.Time) ErrorRecord {
	rec := ErrorRecord{
		Kind:        core.KindOf(err),
		Message:     err.Error(),
		Phase:       s.Phase(),
		Recoverable: core.IsRecoverable(err),
		At:          now,
	}
	s.Errors = append(s.Errors, rec)

	previous := s.Current
	if f, ok := previous.Payload.(*Failure); ok {
		previous = f.Previous
	}
	entry := Tagged{Payload: &Failure{Previous: previous, Error: rec}}
	if s.Phase() == PhaseError {
		s.History[len(s.History)-1] = entry
	} else {
		s.History = append(s.History, entry)
	}
	s.Current = entry
	s.Terminated = s.Terminated || !rec.Recoverable
	s.UpdatedAt = now
	return rec
}

// LatestProfile returns the most recent profiled payload in the history, which is
// what a recovery re-resolves from.
func (s *Session) LatestProfile() (ProfileReady, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		p := s.History[i].Payload
		if f, ok := p.(*Failure); ok {
			p = f.Previous.Payload
		}
		if pr, err := profiled(p); err == nil && pr.Profile != nil {
			return pr, true
		}
	}
	return ProfileReady{}, false
}

// NavigateBack restores the most recent history entry of target and discards
// everything recorded after it. Only strictly earlier phases that were actually
// reached are allowed; nothing is recomputed.
func (s *Session) NavigateBack(target Phase, now time.Time) error {
	if s.Terminated {
		return fmt.Errorf("%w: session %s", core.ErrSessionTerminated, s.ID)
	}
	from := s.Phase()
	if !target.Before(from) {
		return &core.PhaseTransitionError{From: string(from), Event: "navigate:" + string(target), Reason: "only strictly earlier phases can be revisited"}
	}
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Phase() == target {
			s.History = s.History[:i+1]
			s.Current = s.History[i]
			s.UpdatedAt = now
			return nil
		}
	}
	return &core.PhaseTransitionError{From: string(from), Event: "navigate:" + string(target), Reason: "phase was never reached"}
}

// Reset returns the session to LANDING, dropping every artifact and error
func (s *Session) Reset(now time.Time) {
	landing := Tagged{Payload: &Landing{}}
	s.Current = landing
	s.History = []Tagged{landing}
	s.Errors = []ErrorRecord{}
	s.Terminated = false
	s.UpdatedAt = now
	s.Say(RoleSystem, "Session reset. Upload a dataset to begin.", now)
}

// Say appends a transcript message
func (s *Session) Say(role Role, content string, now time.Time) {
	s.Transcript = append(s.Transcript, Message{Role: role, Content: content, At: now})
}

// Validate checks the aggregate invariants
func (s *Session) Validate() error {
	if s.Current.Payload == nil {
		return fmt.Errorf("%w: session %s has no current phase", core.ErrInconsistentState, s.ID)
	}
	if len(s.History) == 0 || s.History[len(s.History)-1].Phase() != s.Phase() {
		return fmt.Errorf("%w: current phase %s is not the last history entry", core.ErrInconsistentState, s.Phase())
	}
	if s.Terminated && s.Phase() != PhaseError {
		return fmt.Errorf("%w: terminated session is in %s", core.ErrInconsistentState, s.Phase())
	}
	for _, entry := range s.History {
		if entry.Payload == nil {
			return fmt.Errorf("%w: empty history entry", core.ErrInconsistentState)
		}
		if err := checkConsistency(entry.Payload); err != nil {
			return err
		}
	}
	return nil
}

// checkConsistency enforces that a payload's profile describes its table
func checkConsistency(p Payload) error {
	t, prof := p.Working()
	if t == nil || prof == nil {
		return nil
	}
	if prof.TableVersion != t.Version {
		return fmt.Errorf("%w: %s profile describes table version %d, table is version %d",
			core.ErrInconsistentState, p.Phase(), prof.TableVersion, t.Version)
	}
	return nil
}

// Encode serializes the session snapshot
func Encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

// Decode restores a session snapshot and validates it
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
