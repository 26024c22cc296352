package session

// Phase is a named stage of the guided workflow
type Phase string

const (
	PhaseLanding                  Phase = "LANDING"
	PhaseDataUploaded             Phase = "DATA_UPLOADED"
	PhaseProfileReady             Phase = "PROFILE_READY"
	PhaseWaitingForIntent         Phase = "WAITING_FOR_INTENT"
	PhaseIntentParsed             Phase = "INTENT_PARSED"
	PhaseTargetValidationRequired Phase = "TARGET_VALIDATION_REQUIRED"
	PhaseInvestigating            Phase = "INVESTIGATING"
	PhaseDriverRanked             Phase = "DRIVER_RANKED"
	PhaseAnswerReady              Phase = "ANSWER_READY"
	PhasePlanReady                Phase = "PLAN_READY"
	PhaseExecuting                Phase = "EXECUTING"
	PhaseCompleted                Phase = "COMPLETED"
	PhaseError                    Phase = "ERROR"
)

// order places each phase on the linear workflow; the plan branch shares
// positions with the driver branch after INTENT_PARSED
var order = map[Phase]int{
	PhaseLanding:                  0,
	PhaseDataUploaded:             1,
	PhaseProfileReady:             2,
	PhaseWaitingForIntent:         3,
	PhaseIntentParsed:             4,
	PhaseTargetValidationRequired: 5,
	PhaseInvestigating:            6,
	PhaseDriverRanked:             7,
	PhaseAnswerReady:              8,
	PhasePlanReady:                5,
	PhaseExecuting:                6,
	PhaseCompleted:                7,
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	_, ok := order[p]
	return ok || p == PhaseError
}

// Terminal reports whether the workflow ends in p
func (p Phase) Terminal() bool {
	return p == PhaseAnswerReady || p == PhaseCompleted
}

// Before reports whether p comes strictly earlier than other on the workflow.
// ERROR is never before or after anything.
func (p Phase) Before(other Phase) bool {
	a, okA := order[p]
	b, okB := order[other]
	return okA && okB && a < b
}

// Event drives a phase transition
type Event string

const (
	EventUpload          Event = "upload"
	EventProfiled        Event = "profiled"
	EventTreated         Event = "treated"
	EventAwaitIntent     Event = "await_intent"
	EventIntentParsed    Event = "intent_parsed"
	EventTargetAmbiguous Event = "target_ambiguous"
	EventInvestigate     Event = "investigate"
	EventRanked          Event = "ranked"
	EventAnswered        Event = "answered"
	EventPlanned         Event = "planned"
	EventApproved        Event = "approved"
	EventExecuted        Event = "executed"
	EventRecover         Event = "recover"
)
