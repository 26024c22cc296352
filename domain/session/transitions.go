package session

import (
	"errors"
	"fmt"
)

// guard checks the artifacts a phase requires before it may be entered
type guard func(s *Session, next Payload) error

type transitionKey struct {
	from  Phase
	event Event
}

type rule struct {
	to    Phase
	guard guard
}

// transitions is the complete (phase, event) table. Anything missing is illegal.
// ERROR is entered through Fail, never through this table.
var transitions = map[transitionKey]rule{
	{PhaseLanding, EventUpload}:                       {PhaseDataUploaded, requireTable},
	{PhaseDataUploaded, EventProfiled}:                {PhaseProfileReady, requireProfile},
	{PhaseProfileReady, EventTreated}:                 {PhaseProfileReady, requireTreatment},
	{PhaseProfileReady, EventAwaitIntent}:             {PhaseWaitingForIntent, requireProfile},
	{PhaseWaitingForIntent, EventTreated}:             {PhaseWaitingForIntent, requireTreatment},
	{PhaseWaitingForIntent, EventIntentParsed}:        {PhaseIntentParsed, requireGoal},
	{PhaseIntentParsed, EventTargetAmbiguous}:         {PhaseTargetValidationRequired, requireCandidates},
	{PhaseIntentParsed, EventInvestigate}:             {PhaseInvestigating, requireHypotheses},
	{PhaseTargetValidationRequired, EventInvestigate}: {PhaseInvestigating, requireHypotheses},
	{PhaseInvestigating, EventRanked}:                 {PhaseDriverRanked, requireRanking},
	{PhaseDriverRanked, EventAnswered}:                {PhaseAnswerReady, requireAnswer},
	{PhaseIntentParsed, EventPlanned}:                 {PhasePlanReady, requirePlan},
	{PhasePlanReady, EventApproved}:                   {PhaseExecuting, requireApproval},
	{PhaseExecuting, EventExecuted}:                   {PhaseCompleted, requireExecution},
	{PhaseError, EventRecover}:                        {PhaseWaitingForIntent, requireRecoverable},
}

// Allowed lists the events accepted in phase p
func Allowed(p Phase) []Event {
	var out []Event
	for _, e := range []Event{
		EventUpload, EventProfiled, EventTreated, EventAwaitIntent, EventIntentParsed,
		EventTargetAmbiguous, EventInvestigate, EventRanked, EventAnswered,
		EventPlanned, EventApproved, EventExecuted, EventRecover,
	} {
		if _, ok := transitions[transitionKey{p, e}]; ok {
			out = append(out, e)
		}
	}
	return out
}

var errWrongPayload = errors.New("payload type does not match phase")

func requireTable(_ *Session, next Payload) error {
	p, ok := next.(*DataUploaded)
	if !ok {
		return errWrongPayload
	}
	if p.Table == nil || p.Table.NumRows() == 0 || p.Table.NumCols() == 0 {
		return errors.New("an uploaded table with rows and columns is required")
	}
	return nil
}

func profiled(next Payload) (ProfileReady, error) {
	p, ok := next.(interface{ Profiled() ProfileReady })
	if !ok {
		return ProfileReady{}, errWrongPayload
	}
	return p.Profiled(), nil
}

func requireProfile(_ *Session, next Payload) error {
	p, err := profiled(next)
	if err != nil {
		return err
	}
	if p.Profile == nil || p.Table == nil {
		return errors.New("a profiled table is required")
	}
	return nil
}

func requireTreatment(s *Session, next Payload) error {
	if err := requireProfile(s, next); err != nil {
		return err
	}
	cur, err := profiled(s.Current.Payload)
	if err != nil {
		return err
	}
	p, _ := profiled(next)
	if len(p.Treatments) != len(cur.Treatments)+1 {
		return errors.New("exactly one new treatment result is required")
	}
	last := p.Treatments[len(p.Treatments)-1]
	if last.VersionBefore != cur.Table.Version || last.VersionAfter != p.Table.Version {
		return fmt.Errorf("treatment moved table v%d->v%d, session holds v%d->v%d",
			last.VersionBefore, last.VersionAfter, cur.Table.Version, p.Table.Version)
	}
	return nil
}

func requireGoal(_ *Session, next Payload) error {
	p, ok := next.(*IntentParsed)
	if !ok {
		return errWrongPayload
	}
	if p.Goal == "" {
		return errors.New("a goal is required")
	}
	if p.Resolution.Category == "" {
		return errors.New("the goal has not been resolved")
	}
	return nil
}

func requireCandidates(_ *Session, next Payload) error {
	p, ok := next.(*TargetValidationRequired)
	if !ok {
		return errWrongPayload
	}
	if !p.Resolution.Ambiguous || len(p.Resolution.Candidates) == 0 {
		return errors.New("target validation needs an ambiguous resolution with candidates")
	}
	return nil
}

func requireHypotheses(_ *Session, next Payload) error {
	p, ok := next.(*Investigating)
	if !ok {
		return errWrongPayload
	}
	if !p.Resolution.Resolved() || !p.Resolution.Category.NeedsTarget() {
		return errors.New("investigation needs a resolved target")
	}
	if p.Hypotheses == nil || p.Hypotheses.Target != p.Resolution.Target {
		return errors.New("hypotheses for the resolved target are required")
	}
	return nil
}

func requireRanking(_ *Session, next Payload) error {
	p, ok := next.(*DriverRanked)
	if !ok {
		return errWrongPayload
	}
	if !p.Ranking.Tested() {
		return errors.New("a ranking with at least one tested driver is required")
	}
	if len(p.Results) != len(p.Hypotheses.Hypotheses) {
		return fmt.Errorf("%d results for %d hypotheses", len(p.Results), len(p.Hypotheses.Hypotheses))
	}
	return nil
}

func requireAnswer(_ *Session, next Payload) error {
	p, ok := next.(*AnswerReady)
	if !ok {
		return errWrongPayload
	}
	if p.Answer.Narrative == "" {
		return errors.New("an answer narrative is required")
	}
	return nil
}

func requirePlan(_ *Session, next Payload) error {
	p, ok := next.(*PlanReady)
	if !ok {
		return errWrongPayload
	}
	if p.Resolution.Category.NeedsTarget() {
		return fmt.Errorf("intent %s runs a driver investigation, not a plan", p.Resolution.Category)
	}
	if p.Plan == nil || len(p.Plan.Steps) == 0 {
		return errors.New("a plan with at least one step is required")
	}
	return nil
}

func requireApproval(_ *Session, next Payload) error {
	p, ok := next.(*Executing)
	if !ok {
		return errWrongPayload
	}
	if p.ApprovedAt.IsZero() {
		return errors.New("plan approval is required")
	}
	return nil
}

func requireExecution(_ *Session, next Payload) error {
	p, ok := next.(*Completed)
	if !ok {
		return errWrongPayload
	}
	if p.Execution == nil || len(p.Execution.Results) != len(p.Plan.Steps) {
		return errors.New("every plan step needs a result")
	}
	return nil
}

func requireRecoverable(s *Session, next Payload) error {
	f, ok := s.Current.Payload.(*Failure)
	if !ok || !f.Error.Recoverable {
		return errors.New("only recoverable errors can be re-resolved")
	}
	return requireProfile(s, next)
}
