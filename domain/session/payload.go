package session

import (
	"encoding/json"
	"fmt"
	"time"

	"gostudio/domain/hypothesis"
	"gostudio/domain/intent"
	"gostudio/domain/plan"
	"gostudio/domain/profile"
	"gostudio/domain/ranking"
	"gostudio/domain/stats"
	"gostudio/domain/table"
	"gostudio/domain/treatment"
)

// Payload is the data owned by one phase. Every phase has its own payload type,
// and each embeds the payload of the phase before it, so a phase can only hold
// the artifacts its predecessors produced.
type Payload interface {
	Phase() Phase
	// Working returns the table the phase operates on and the profile that
	// describes it; either may be nil early in the workflow.
	Working() (*table.Table, *profile.Profile)
}

// ============================================================================
// ARTIFACTS PRODUCED BY THE REASONING COLLABORATOR
// ============================================================================

// DomainInsight is the inferred business domain of the dataset
type DomainInsight struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"` // in [0, 1]
	Reasoning  string  `json:"reasoning"`
	Fallback   bool    `json:"fallback"` // produced by the template, not the collaborator
}

// DatasetSummary is the executive summary shown after profiling
type DatasetSummary struct {
	Headline   string   `json:"headline"`
	Highlights []string `json:"highlights"`
	Fallback   bool     `json:"fallback"`
}

// Answer is the narrative answer to the user's goal
type Answer struct {
	Narrative string   `json:"narrative"`
	Evidence  []string `json:"evidence"`
	Fallback  bool     `json:"fallback"`
}

// ============================================================================
// PHASE PAYLOADS
// ============================================================================

// Landing is the empty starting payload
type Landing struct{}

func (Landing) Phase() Phase                              { return PhaseLanding }
func (Landing) Working() (*table.Table, *profile.Profile) { return nil, nil }

// DataUploaded holds the loaded table
type DataUploaded struct {
	FileName   string       `json:"file_name"`
	Table      *table.Table `json:"table"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

func (DataUploaded) Phase() Phase                                { return PhaseDataUploaded }
func (d DataUploaded) Working() (*table.Table, *profile.Profile) { return d.Table, nil }

// Uploaded returns the upload stage of any later payload
func (d DataUploaded) Uploaded() DataUploaded { return d }

// ProfileReady holds the profile, reasoning output and missing-value remediation state.
// Table and Profile always describe the same version.
type ProfileReady struct {
	DataUploaded
	Profile    *profile.Profile     `json:"profile"`
	Domain     DomainInsight        `json:"domain"`
	Summary    DatasetSummary       `json:"summary"`
	Solutions  []treatment.Solution `json:"solutions"`
	Treatments []treatment.Result   `json:"treatments"`
}

func (ProfileReady) Phase() Phase                                { return PhaseProfileReady }
func (p ProfileReady) Working() (*table.Table, *profile.Profile) { return p.Table, p.Profile }

// Profiled returns the profiling stage of any later payload
func (p ProfileReady) Profiled() ProfileReady { return p }

// WaitingForIntent is the profiled dataset waiting for a goal
type WaitingForIntent struct {
	ProfileReady
}

func (WaitingForIntent) Phase() Phase { return PhaseWaitingForIntent }

// IntentParsed holds the goal and its resolution
type IntentParsed struct {
	WaitingForIntent
	Goal       string            `json:"goal"`
	Resolution intent.Resolution `json:"resolution"`
}

func (IntentParsed) Phase() Phase { return PhaseIntentParsed }

// Intent returns the intent stage of any later payload
func (p IntentParsed) Intent() IntentParsed { return p }

// TargetValidationRequired waits for the user to pick among candidate targets
type TargetValidationRequired struct {
	IntentParsed
}

func (TargetValidationRequired) Phase() Phase { return PhaseTargetValidationRequired }

// Investigating holds the hypotheses about to be tested
type Investigating struct {
	IntentParsed
	Hypotheses *hypothesis.Set `json:"hypotheses"`
}

func (Investigating) Phase() Phase { return PhaseInvestigating }

// DriverRanked holds every test result and the ranking built from them
type DriverRanked struct {
	Investigating
	Results stats.Results    `json:"results"`
	Ranking *ranking.Ranking `json:"ranking"`
}

func (DriverRanked) Phase() Phase { return PhaseDriverRanked }

// AnswerReady is the end of the driver branch
type AnswerReady struct {
	DriverRanked
	Answer Answer `json:"answer"`
}

func (AnswerReady) Phase() Phase { return PhaseAnswerReady }

// PlanReady holds a plan awaiting approval
type PlanReady struct {
	IntentParsed
	Plan *plan.Plan `json:"plan"`
}

func (PlanReady) Phase() Phase { return PhasePlanReady }

// Executing marks an approved plan in progress
type Executing struct {
	PlanReady
	ApprovedAt time.Time `json:"approved_at"`
}

func (Executing) Phase() Phase { return PhaseExecuting }

// Completed is the end of the plan branch. The working table is the one the
// plan produced.
type Completed struct {
	Executing
	Execution *plan.Execution `json:"execution"`
}

func (Completed) Phase() Phase { return PhaseCompleted }

func (c Completed) Working() (*table.Table, *profile.Profile) {
	if c.Execution == nil {
		return c.Table, c.Profile
	}
	return c.Execution.Table, c.Execution.Profile
}

// Failure is the ERROR payload. It keeps the payload of the phase that failed.
type Failure struct {
	Previous Tagged      `json:"previous"`
	Error    ErrorRecord `json:"error"`
}

func (Failure) Phase() Phase { return PhaseError }

func (f Failure) Working() (*table.Table, *profile.Profile) {
	if f.Previous.Payload == nil {
		return nil, nil
	}
	return f.Previous.Working()
}

// ErrorRecord is one entry of the session error log
type ErrorRecord struct {
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Phase       Phase     `json:"phase"`
	Recoverable bool      `json:"recoverable"`
	At          time.Time `json:"at"`
}

// ============================================================================
// TAGGED ENCODING
// ============================================================================

type payloadEnvelope struct {
	Phase   Phase           `json:"phase"`
	Payload json.RawMessage `json:"payload"`
}

// Tagged wraps a Payload for JSON encoding as {phase, payload}
type Tagged struct {
	Payload
}

// MarshalJSON writes the payload with its phase tag
func (t Tagged) MarshalJSON() ([]byte, error) {
	if t.Payload == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Phase: t.Payload.Phase(), Payload: raw})
}

// UnmarshalJSON restores the concrete payload type named by the tag
func (t *Tagged) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Payload = nil
		return nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	p, err := newPayload(env.Phase)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Payload, p); err != nil {
		return fmt.Errorf("decoding %s payload: %w", env.Phase, err)
	}
	t.Payload = p
	return nil
}

func newPayload(phase Phase) (Payload, error) {
	switch phase {
	case PhaseLanding:
		return &Landing{}, nil
	case PhaseDataUploaded:
		return &DataUploaded{}, nil
	case PhaseProfileReady:
		return &ProfileReady{}, nil
	case PhaseWaitingForIntent:
		return &WaitingForIntent{}, nil
	case PhaseIntentParsed:
		return &IntentParsed{}, nil
	case PhaseTargetValidationRequired:
		return &TargetValidationRequired{}, nil
	case PhaseInvestigating:
		return &Investigating{}, nil
	case PhaseDriverRanked:
		return &DriverRanked{}, nil
	case PhaseAnswerReady:
		return &AnswerReady{}, nil
	case PhasePlanReady:
		return &PlanReady{}, nil
	case PhaseExecuting:
		return &Executing{}, nil
	case PhaseCompleted:
		return &Completed{}, nil
	case PhaseError:
		return &Failure{}, nil
	}
	return nil, fmt.Errorf("unknown phase %q", phase)
}
