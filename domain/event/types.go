package event

import (
	"time"

	"gostudio/domain/core"
)

// Type names a lifecycle event
type Type string

const (
	PhaseChanged      Type = "phase_changed"
	StepStarted       Type = "step_started"
	StepCompleted     Type = "step_completed"
	StepFailed        Type = "step_failed"
	AnalysisCompleted Type = "analysis_completed"
)

// Event is a progress notification for external observers. Delivery is best-effort;
// the session snapshot is always the source of truth.
type Event struct {
	Type      Type           `json:"type"`
	SessionID core.SessionID `json:"session_id"`
	Phase     string         `json:"phase,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      any            `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New stamps an event for a session
func New(sessionID core.SessionID, typ Type) Event {
	return Event{Type: typ, SessionID: sessionID, Timestamp: core.Now()}
}
