package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/domain/core"
	"gostudio/domain/hypothesis"
	"gostudio/domain/intent"
	"gostudio/domain/plan"
	"gostudio/domain/profile"
	"gostudio/domain/ranking"
	"gostudio/domain/stats"
	"gostudio/domain/table"
	"gostudio/domain/treatment"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func sampleTable() *table.Table {
	return table.MustNew("sales.csv",
		table.FloatColumn("revenue", []float64{100, 120, 90, 300}),
		table.StringColumn("region", []string{"North", "North", "South", "South"}),
	)
}

func profileOf(t *table.Table) *profile.Profile {
	return &profile.Profile{TableVersion: t.Version, RowCount: t.NumRows(), ColumnCount: t.NumCols()}
}

func uploaded() DataUploaded {
	return DataUploaded{FileName: "sales.csv", Table: sampleTable(), UploadedAt: at(1)}
}

func profiledPayload() ProfileReady {
	up := uploaded()
	return ProfileReady{
		DataUploaded: up,
		Profile:      profileOf(up.Table),
		Domain:       DomainInsight{Domain: "sales", Confidence: 0.8, Reasoning: "revenue by region"},
		Summary:      DatasetSummary{Headline: "4 rows", Highlights: []string{"no missing values"}},
		Solutions:    []treatment.Solution{},
		Treatments:   []treatment.Result{},
	}
}

func resolvedIntent() IntentParsed {
	return IntentParsed{
		WaitingForIntent: WaitingForIntent{ProfileReady: profiledPayload()},
		Goal:             "why does revenue differ",
		Resolution: intent.Resolution{
			Goal:       "why does revenue differ",
			Category:   intent.CategoryDiagnostic,
			Target:     "revenue",
			TargetType: intent.TargetRegression,
			Candidates: []intent.Candidate{{Column: "revenue", Score: 0.9, Reason: "mentioned in the goal"}},
		},
	}
}

func investigating() Investigating {
	return Investigating{
		IntentParsed: resolvedIntent(),
		Hypotheses: &hypothesis.Set{
			Target:     "revenue",
			TargetType: intent.TargetRegression,
			Hypotheses: []hypothesis.Hypothesis{{Predictor: "region", Target: "revenue", Kind: hypothesis.KindGroupDifference, PredictorRole: profile.RoleCategorical}},
			Skipped:    []hypothesis.Skipped{},
		},
	}
}

func rankedPayload() DriverRanked {
	res := &stats.GroupDifferenceResult{
		Subject:    stats.Subject{Predictor: "region", Target: "revenue", SampleSize: 4},
		Method:     stats.TestWelchT,
		Statistic:  -1.2,
		PValue:     0.35,
		EffectSize: 1.1,
		Groups:     2,
		GroupMeans: map[string]float64{"North": 110, "South": 195},
	}
	return DriverRanked{
		Investigating: investigating(),
		Results:       stats.Results{res},
		Ranking: &ranking.Ranking{
			Target:     "revenue",
			TargetType: intent.TargetRegression,
			Drivers:    []ranking.Driver{{Rank: 1, Predictor: "region", Composite: 0.47, SignificanceLabel: "not significant", Result: stats.Tagged{Result: res}}},
			Weights:    ranking.DefaultWeights(),
			Flags:      []ranking.QualityFlag{},
		},
	}
}

// driveToAnswer walks the driver branch end to end
func driveToAnswer(t *testing.T) *Session {
	t.Helper()
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	pr := profiledPayload()
	require.NoError(t, s.Apply(EventProfiled, &pr, at(2)))
	require.NoError(t, s.Apply(EventAwaitIntent, &WaitingForIntent{ProfileReady: pr}, at(3)))
	ip := resolvedIntent()
	require.NoError(t, s.Apply(EventIntentParsed, &ip, at(4)))
	inv := investigating()
	require.NoError(t, s.Apply(EventInvestigate, &inv, at(5)))
	dr := rankedPayload()
	require.NoError(t, s.Apply(EventRanked, &dr, at(6)))
	require.NoError(t, s.Apply(EventAnswered, &AnswerReady{DriverRanked: dr, Answer: Answer{Narrative: "Region explains revenue.", Evidence: []string{"South averages 195"}}}, at(7)))
	return s
}

func phases(s *Session) []Phase {
	out := make([]Phase, len(s.History))
	for i, h := range s.History {
		out[i] = h.Phase()
	}
	return out
}

func TestSession_DriverBranch(t *testing.T) {
	s := driveToAnswer(t)

	assert.Equal(t, PhaseAnswerReady, s.Phase())
	assert.True(t, s.Phase().Terminal())
	assert.Equal(t, []Phase{
		PhaseLanding, PhaseDataUploaded, PhaseProfileReady, PhaseWaitingForIntent,
		PhaseIntentParsed, PhaseInvestigating, PhaseDriverRanked, PhaseAnswerReady,
	}, phases(s))
	assert.NoError(t, s.Validate())

	tbl, prof := s.Current.Working()
	require.NotNil(t, tbl)
	assert.Equal(t, tbl.Version, prof.TableVersion)
}

func TestSession_RejectsIllegalTransitions(t *testing.T) {
	s := New(core.NewSessionID(), t0)

	dr := rankedPayload()
	err := s.Apply(EventRanked, &dr, at(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidTransition))
	assert.Equal(t, core.KindInvalidTransition, core.KindOf(err))

	pr := profiledPayload()
	err = s.Apply(EventUpload, &pr, at(1))
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "payload must match the target phase")

	assert.Equal(t, PhaseLanding, s.Phase())
	assert.Len(t, s.History, 1)
}

func TestSession_GuardsRequireArtifacts(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	empty := DataUploaded{FileName: "empty.csv", Table: table.MustNew("empty.csv")}
	assert.ErrorIs(t, s.Apply(EventUpload, &empty, at(1)), core.ErrInvalidTransition)

	s = driveToAnswer(t)
	require.NoError(t, s.NavigateBack(PhaseInvestigating, at(8)))

	dr := rankedPayload()
	dr.Ranking = &ranking.Ranking{Target: "revenue"}
	err := s.Apply(EventRanked, &dr, at(9))
	var pte *core.PhaseTransitionError
	require.ErrorAs(t, err, &pte)
	assert.Contains(t, pte.Reason, "at least one tested driver")
	assert.Equal(t, PhaseInvestigating, s.Phase())

	dr = rankedPayload()
	failedOnly := &stats.FailedResult{Subject: stats.Subject{Predictor: "region", Target: "revenue"}, ErrorKind: core.KindInsufficientData, Reason: "zero variance"}
	dr.Ranking = &ranking.Ranking{Target: "revenue", Drivers: []ranking.Driver{{Rank: 1, Predictor: "region", Result: stats.Tagged{Result: failedOnly}}}}
	require.ErrorAs(t, s.Apply(EventRanked, &dr, at(10)), &pte)
	assert.Equal(t, PhaseInvestigating, s.Phase())
}

func TestSession_AmbiguousTargetNeedsValidation(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	pr := profiledPayload()
	require.NoError(t, s.Apply(EventProfiled, &pr, at(2)))
	require.NoError(t, s.Apply(EventAwaitIntent, &WaitingForIntent{ProfileReady: pr}, at(3)))

	ip := resolvedIntent()
	ip.Resolution.Target, ip.Resolution.TargetType = "", ""
	ip.Resolution.Ambiguous = true
	ip.Resolution.Candidates = []intent.Candidate{{Column: "revenue", Score: 0.6}, {Column: "score", Score: 0.6}}
	require.NoError(t, s.Apply(EventIntentParsed, &ip, at(4)))

	inv := Investigating{IntentParsed: ip}
	assert.ErrorIs(t, s.Apply(EventInvestigate, &inv, at(5)), core.ErrInvalidTransition, "an unresolved target cannot be investigated")

	require.NoError(t, s.Apply(EventTargetAmbiguous, &TargetValidationRequired{IntentParsed: ip}, at(5)))
	assert.Equal(t, PhaseTargetValidationRequired, s.Phase())

	confirmed := investigating()
	confirmed.Resolution.Confirmed = true
	require.NoError(t, s.Apply(EventInvestigate, &confirmed, at(6)))
	assert.Equal(t, PhaseInvestigating, s.Phase())
}

func TestSession_RejectsInconsistentProfile(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))

	pr := profiledPayload()
	pr.Profile.TableVersion = pr.Table.Version + 1
	err := s.Apply(EventProfiled, &pr, at(2))
	assert.ErrorIs(t, err, core.ErrInconsistentState)
	assert.Equal(t, PhaseDataUploaded, s.Phase())
}

func TestSession_TreatmentReplacesCurrentEntry(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	pr := profiledPayload()
	require.NoError(t, s.Apply(EventProfiled, &pr, at(2)))

	next, err := pr.Table.WithColumn(table.FloatColumn("revenue", []float64{100, 120, 90, 310}))
	require.NoError(t, err)
	treated := pr
	treated.Table = next
	treated.Profile = profileOf(next)
	treated.Treatments = []treatment.Result{{SolutionID: "impute_mean:revenue", VersionBefore: pr.Table.Version, VersionAfter: next.Version}}
	require.NoError(t, s.Apply(EventTreated, &treated, at(3)))

	assert.Equal(t, []Phase{PhaseLanding, PhaseDataUploaded, PhaseProfileReady}, phases(s))
	tbl, _ := s.Current.Working()
	assert.Equal(t, uint64(2), tbl.Version)

	again := treated
	assert.ErrorIs(t, s.Apply(EventTreated, &again, at(4)), core.ErrInvalidTransition, "a treatment must add one result")
}

func TestSession_NavigateBack(t *testing.T) {
	s := driveToAnswer(t)

	err := s.NavigateBack(PhasePlanReady, at(8))
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "plan branch was never reached")
	err = s.NavigateBack(PhaseAnswerReady, at(8))
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "not strictly earlier")

	require.NoError(t, s.NavigateBack(PhaseProfileReady, at(8)))
	assert.Equal(t, PhaseProfileReady, s.Phase())
	assert.Equal(t, []Phase{PhaseLanding, PhaseDataUploaded, PhaseProfileReady}, phases(s))

	restored, ok := s.Current.Payload.(*ProfileReady)
	require.True(t, ok)
	assert.Equal(t, "sales", restored.Domain.Domain)

	err = s.NavigateBack(PhaseDriverRanked, at(9))
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "forward navigation is not allowed")
}

func TestSession_RecoverableFailure(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	pr := profiledPayload()
	require.NoError(t, s.Apply(EventProfiled, &pr, at(2)))

	rec := s.Fail(&core.StaleSolutionError{SolutionID: "impute_mean:revenue", Reason: "table changed"}, at(3))
	assert.Equal(t, core.KindStaleSolution, rec.Kind)
	assert.True(t, rec.Recoverable)
	assert.Equal(t, PhaseProfileReady, rec.Phase)
	assert.Equal(t, PhaseError, s.Phase())
	assert.False(t, s.Terminated)
	require.Len(t, s.Errors, 1)

	latest, ok := s.LatestProfile()
	require.True(t, ok)
	require.NoError(t, s.Apply(EventRecover, &WaitingForIntent{ProfileReady: latest}, at(4)))
	assert.Equal(t, PhaseWaitingForIntent, s.Phase())
	assert.NoError(t, s.Validate())
}

func TestSession_UnrecoverableFailureTerminates(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	rec := s.Fail(&core.CorruptedUploadError{Source: "bad.csv", Reason: "no header"}, at(1))
	assert.Equal(t, core.KindCorruptedUpload, rec.Kind)
	assert.False(t, rec.Recoverable)
	assert.True(t, s.Terminated)

	up := uploaded()
	assert.ErrorIs(t, s.Apply(EventUpload, &up, at(2)), core.ErrSessionTerminated)
	assert.ErrorIs(t, s.Apply(EventRecover, &WaitingForIntent{}, at(2)), core.ErrSessionTerminated)
	assert.NoError(t, s.Validate())

	s.Reset(at(3))
	assert.False(t, s.Terminated)
	assert.Equal(t, PhaseLanding, s.Phase())
	assert.Empty(t, s.Errors)
	require.NoError(t, s.Apply(EventUpload, &up, at(4)))
}

func TestSession_PlanBranch(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	pr := profiledPayload()
	require.NoError(t, s.Apply(EventProfiled, &pr, at(2)))
	require.NoError(t, s.Apply(EventAwaitIntent, &WaitingForIntent{ProfileReady: pr}, at(3)))

	ip := resolvedIntent()
	ip.Resolution = intent.Resolution{Goal: "summarize", Category: intent.CategoryDescriptive, Candidates: []intent.Candidate{}}
	require.NoError(t, s.Apply(EventIntentParsed, &ip, at(4)))

	pl := &plan.Plan{Category: intent.CategoryDescriptive, TableVersion: 1, Steps: []plan.Step{{ID: "step_1", Operation: plan.OpSummary}}}
	ready := PlanReady{IntentParsed: ip, Plan: pl}
	require.NoError(t, s.Apply(EventPlanned, &ready, at(5)))

	unapproved := Executing{PlanReady: ready}
	assert.ErrorIs(t, s.Apply(EventApproved, &unapproved, at(6)), core.ErrInvalidTransition)
	exec := Executing{PlanReady: ready, ApprovedAt: at(6)}
	require.NoError(t, s.Apply(EventApproved, &exec, at(6)))

	tbl, prof := ready.Working()
	done := Completed{Executing: exec, Execution: &plan.Execution{
		Results: []plan.StepResult{{StepID: "step_1", Operation: plan.OpSummary, Status: plan.StatusSuccess, Summary: "ok"}},
		Table:   tbl,
		Profile: prof,
	}}
	require.NoError(t, s.Apply(EventExecuted, &done, at(7)))
	assert.Equal(t, PhaseCompleted, s.Phase())
	assert.Equal(t, []Event(nil), Allowed(PhaseCompleted))
}

func TestSession_SnapshotRoundTrip(t *testing.T) {
	s := driveToAnswer(t)
	s.Say(RoleUser, "why does revenue differ", at(4))
	s.Say(RoleAssistant, "Region explains revenue.", at(7))

	data, err := Encode(s)
	require.NoError(t, err)
	restored, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, s.Phase(), restored.Phase())
	assert.Equal(t, s, restored)

	again, err := Encode(restored)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	answer, ok := restored.Current.Payload.(*AnswerReady)
	require.True(t, ok)
	assert.Equal(t, "region", answer.Ranking.Drivers[0].Predictor)
	_, isGroup := answer.Results[0].(*stats.GroupDifferenceResult)
	assert.True(t, isGroup)
}

func TestSession_SnapshotOfFailure(t *testing.T) {
	s := New(core.NewSessionID(), t0)
	up := uploaded()
	require.NoError(t, s.Apply(EventUpload, &up, at(1)))
	s.Fail(&core.CorruptedUploadError{Source: "sales.csv", Reason: "ragged rows"}, at(2))

	data, err := Encode(s)
	require.NoError(t, err)
	restored, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, restored)

	f, ok := restored.Current.Payload.(*Failure)
	require.True(t, ok)
	assert.Equal(t, PhaseDataUploaded, f.Previous.Phase())
}

func TestDecode_RejectsUnknownPhase(t *testing.T) {
	_, err := Decode([]byte(`{"id":"x","current":{"phase":"NOPE","payload":{}},"history":[]}`))
	assert.Error(t, err)
}
