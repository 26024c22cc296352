package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound         = errors.New("resource not found")
	ErrSessionNotFound  = fmt.Errorf("%w: session", ErrNotFound)
	ErrSolutionNotFound = fmt.Errorf("%w: missing-value solution", ErrNotFound)
	ErrColumnNotFound   = fmt.Errorf("%w: column", ErrNotFound)

	// Analysis errors
	ErrStaleSolution     = errors.New("stale missing-value solution")
	ErrUnsupportedTarget = errors.New("unsupported target")
	ErrAmbiguousTarget   = errors.New("ambiguous target")
	ErrInsufficientData  = errors.New("insufficient data for analysis")
	ErrTestTimeout       = errors.New("statistical test timed out")
	ErrReasoning         = errors.New("reasoning collaborator failed")
	ErrCorruptedUpload   = errors.New("corrupted upload")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrInconsistentState = errors.New("inconsistent session state")
	ErrSessionTerminated = errors.New("session terminated")
)

// Error kinds - short machine-readable labels surfaced to callers
const (
	KindProfilingWarning  = "profiling_warning"
	KindStaleSolution     = "stale_solution"
	KindUnsupportedTarget = "unsupported_target"
	KindAmbiguousTarget   = "ambiguous_target"
	KindInsufficientData  = "insufficient_data"
	KindTestTimeout       = "test_execution_timeout"
	KindReasoning         = "reasoning_collaborator_error"
	KindCorruptedUpload   = "corrupted_upload"
	KindInvalidTransition = "invalid_transition"
	KindInconsistentState = "inconsistent_state"
	KindNotFound          = "not_found"
	KindSessionTerminated = "session_terminated"
	KindInternal          = "internal"
)

// KindedError is implemented by every domain error that carries a machine-readable kind.
type KindedError interface {
	error
	Kind() string
}

// KindOf returns the kind of err, falling back to sentinel matching.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSessionTerminated):
		return KindSessionTerminated
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInconsistentState):
		return KindInconsistentState
	case errors.Is(err, ErrCorruptedUpload):
		return KindCorruptedUpload
	case errors.Is(err, ErrStaleSolution):
		return KindStaleSolution
	}
	return KindInternal
}

// ProfilingWarning is a non-fatal note attached to a profile.
type ProfilingWarning struct {
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (w ProfilingWarning) Error() string {
	if w.Column == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Column, w.Message)
}

func (w ProfilingWarning) Kind() string { return KindProfilingWarning }

// StaleSolutionError reports a treatment that references a table which has changed.
type StaleSolutionError struct {
	SolutionID string
	Reason     string
}

func (e *StaleSolutionError) Error() string {
	return fmt.Sprintf("solution %s is stale: %s", e.SolutionID, e.Reason)
}

func (e *StaleSolutionError) Kind() string  { return KindStaleSolution }
func (e *StaleSolutionError) Unwrap() error { return ErrStaleSolution }

// UnsupportedTargetError reports a target whose role has no valid test path.
type UnsupportedTargetError struct {
	Column string
	Role   string
	Reason string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("column %s (%s) cannot be used as a target: %s", e.Column, e.Role, e.Reason)
}

func (e *UnsupportedTargetError) Kind() string  { return KindUnsupportedTarget }
func (e *UnsupportedTargetError) Unwrap() error { return ErrUnsupportedTarget }

// AmbiguousTargetError signals that the user must pick among several candidates.
type AmbiguousTargetError struct {
	Candidates []string
}

func (e *AmbiguousTargetError) Error() string {
	if len(e.Candidates) == 0 {
		return "no reliable outcome column could be inferred"
	}
	return fmt.Sprintf("multiple possible outcome columns: %s", strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousTargetError) Kind() string  { return KindAmbiguousTarget }
func (e *AmbiguousTargetError) Unwrap() error { return ErrAmbiguousTarget }

// InsufficientDataError is recorded per hypothesis when a test cannot be meaningfully run.
type InsufficientDataError struct {
	Predictor string
	Reason    string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s", e.Predictor, e.Reason)
}

func (e *InsufficientDataError) Kind() string  { return KindInsufficientData }
func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// TestExecutionTimeout is recorded when a single test exceeds its time budget.
type TestExecutionTimeout struct {
	Predictor string
	Timeout   time.Duration
}

func (e *TestExecutionTimeout) Error() string {
	return fmt.Sprintf("test for %s exceeded %s", e.Predictor, e.Timeout)
}

func (e *TestExecutionTimeout) Kind() string  { return KindTestTimeout }
func (e *TestExecutionTimeout) Unwrap() error { return ErrTestTimeout }

// ReasoningCollaboratorError wraps failures of the language-model collaborator.
type ReasoningCollaboratorError struct {
	Task  string
	Cause error
}

func (e *ReasoningCollaboratorError) Error() string {
	return fmt.Sprintf("reasoning task %s failed: %v", e.Task, e.Cause)
}

func (e *ReasoningCollaboratorError) Kind() string { return KindReasoning }

func (e *ReasoningCollaboratorError) Unwrap() []error { return []error{ErrReasoning, e.Cause} }

// CorruptedUploadError is unrecoverable: the uploaded file cannot become a table.
type CorruptedUploadError struct {
	Source string
	Reason string
}

func (e *CorruptedUploadError) Error() string {
	return fmt.Sprintf("upload %s is unusable: %s", e.Source, e.Reason)
}

func (e *CorruptedUploadError) Kind() string  { return KindCorruptedUpload }
func (e *CorruptedUploadError) Unwrap() error { return ErrCorruptedUpload }

// PhaseTransitionError reports an event that is not legal in the current phase.
type PhaseTransitionError struct {
	From   string
	Event  string
	Reason string
}

func (e *PhaseTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot apply %s in phase %s: %s", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot apply %s in phase %s", e.Event, e.From)
}

func (e *PhaseTransitionError) Kind() string  { return KindInvalidTransition }
func (e *PhaseTransitionError) Unwrap() error { return ErrInvalidTransition }

// NewNotFoundError builds a not-found error for a resource id.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether err is any kind of not-found.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRecoverable reports whether a session-level error can be re-resolved by the user.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrStaleSolution) ||
		errors.Is(err, ErrAmbiguousTarget) ||
		errors.Is(err, ErrUnsupportedTarget) ||
		errors.Is(err, ErrReasoning)
}
