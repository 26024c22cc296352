package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/adapters/tabular"
	"gostudio/domain/core"
	"gostudio/domain/event"
	"gostudio/domain/ranking"
	studio "gostudio/domain/session"
	"gostudio/domain/table"
	"gostudio/internal/reasoning"
	"gostudio/internal/session"
	"gostudio/internal/testkit"
	"gostudio/ports"
)

type fixture struct {
	svc   *StudioService
	store *testkit.InMemorySessionStore
	sink  *testkit.RecordingSink
}

func newFixture(t *testing.T, reasoner ports.Reasoner) *fixture {
	t.Helper()
	store := testkit.NewInMemorySessionStore()
	sink := testkit.NewRecordingSink()
	svc, err := NewStudioService(Dependencies{
		Sessions:  session.NewManager(store, time.Hour),
		Loader:    tabular.NewLoader(),
		Reasoning: reasoning.NewService(reasoner, time.Second),
		Sink:      sink,
	}, Settings{Weights: ranking.DefaultWeights()})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, sink: sink}
}

func csvOf(t *testing.T, tbl *table.Table) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, testkit.WriteCSV(&buf, tbl))
	return &buf
}

func customers(t *testing.T) *table.Table {
	return testkit.NewCustomerDataGenerator(testkit.DefaultCustomerConfig()).Generate()
}

// profiled creates a session, uploads tbl and runs StartAnalysis
func (f *fixture) profiled(t *testing.T, tbl *table.Table) core.SessionID {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, sess.ID, tbl.Source, csvOf(t, tbl))
	require.NoError(t, err)
	snap, err := f.svc.StartAnalysis(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())
	return sess.ID
}

func phases(s *studio.Session) []studio.Phase {
	out := make([]studio.Phase, len(s.History))
	for i, entry := range s.History {
		out[i] = entry.Phase()
	}
	return out
}

func TestStudio_DriverBranch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))

	snap, err := f.svc.SubmitGoal(ctx, id, "What drives revenue?")
	require.NoError(t, err)

	assert.Equal(t, studio.PhaseAnswerReady, snap.Phase())
	assert.Equal(t, []studio.Phase{
		studio.PhaseLanding, studio.PhaseDataUploaded, studio.PhaseProfileReady, studio.PhaseWaitingForIntent,
		studio.PhaseIntentParsed, studio.PhaseInvestigating, studio.PhaseDriverRanked, studio.PhaseAnswerReady,
	}, phases(snap))

	answer := snap.Current.Payload.(*studio.AnswerReady)
	assert.Equal(t, "revenue", answer.Resolution.Target)
	assert.Equal(t, "region", answer.Ranking.Drivers[0].Predictor)
	assert.True(t, answer.Answer.Fallback)
	assert.Contains(t, answer.Answer.Narrative, "region")
	assert.True(t, answer.Domain.Fallback)
	assert.NotEmpty(t, answer.Summary.Headline)
	assert.Len(t, answer.Results, len(answer.Hypotheses.Hypotheses))

	last := snap.Transcript[len(snap.Transcript)-1]
	assert.Equal(t, studio.RoleAssistant, last.Role)
	assert.Equal(t, answer.Answer.Narrative, last.Content)

	assert.Len(t, f.sink.OfType(event.AnalysisCompleted), 1)
	changes := f.sink.OfType(event.PhaseChanged)
	require.NotEmpty(t, changes)
	assert.Equal(t, string(studio.PhaseAnswerReady), changes[len(changes)-1].Phase)
}

func TestStudio_ProfilingProposesSolutions(t *testing.T) {
	f := newFixture(t, nil)
	id := f.profiled(t, customers(t))

	snap, err := f.svc.Snapshot(context.Background(), id)
	require.NoError(t, err)
	waiting := snap.Current.Payload.(*studio.WaitingForIntent)

	require.NotEmpty(t, waiting.Solutions)
	for _, sol := range waiting.Solutions {
		assert.Equal(t, waiting.Table.Version, sol.TableVersion)
	}
	entry, ok := waiting.Profile.Entry("customer_id")
	require.True(t, ok)
	assert.Equal(t, "IDENTIFIER", string(entry.Role))
	assert.Contains(t, snap.Transcript[len(snap.Transcript)-1].Content, "satisfaction")
}

func TestStudio_UsesReasonerWhenAvailable(t *testing.T) {
	reasoner := testkit.NewScriptedReasoner(map[ports.ReasoningTask]string{
		ports.TaskDomainInference: `{"domain": "Customer Analytics", "confidence": 0.82, "reasoning": "customer ids, churn and revenue"}`,
	})
	f := newFixture(t, reasoner)
	id := f.profiled(t, customers(t))

	snap, err := f.svc.Snapshot(context.Background(), id)
	require.NoError(t, err)
	waiting := snap.Current.Payload.(*studio.WaitingForIntent)
	assert.Equal(t, "Customer Analytics", waiting.Domain.Domain)
	assert.False(t, waiting.Domain.Fallback)
	assert.True(t, waiting.Summary.Fallback, "the summary task has no scripted response")
	assert.Empty(t, snap.Errors, "reasoning failures never fail the session")
}

func TestStudio_AmbiguousTargetNeedsConfirmation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, testkit.TwoOutcomeTable(60, 7))

	snap, err := f.svc.SubmitGoal(ctx, id, "What is driving our numbers?")
	require.NoError(t, err)
	require.Equal(t, studio.PhaseTargetValidationRequired, snap.Phase())
	pending := snap.Current.Payload.(*studio.TargetValidationRequired)
	assert.Equal(t, []string{"revenue", "score"}, pending.Resolution.CandidateColumns())

	_, err = f.svc.ConfirmTarget(ctx, id, "no_such_column")
	assert.ErrorIs(t, err, core.ErrColumnNotFound)

	snap, err = f.svc.ConfirmTarget(ctx, id, "revenue")
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseAnswerReady, snap.Phase())
	answer := snap.Current.Payload.(*studio.AnswerReady)
	assert.True(t, answer.Resolution.Confirmed)
	assert.Equal(t, "marketing_spend", answer.Ranking.Drivers[0].Predictor)
}

func TestStudio_ApplySolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))

	snap, err := f.svc.ApplySolution(ctx, id, "impute_median:satisfaction")
	require.NoError(t, err)
	require.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())

	waiting := snap.Current.Payload.(*studio.WaitingForIntent)
	assert.Equal(t, uint64(2), waiting.Table.Version)
	assert.Equal(t, uint64(2), waiting.Profile.TableVersion)
	require.Len(t, waiting.Treatments, 1)
	assert.Equal(t, 0, waiting.Treatments[0].MissingAfter)
	assert.Empty(t, waiting.Solutions, "a complete table needs no further treatment")
	assert.Len(t, snap.History, 4, "treatment replaces the current history entry")
}

func TestStudio_StaleSolutionRecovers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))

	_, err := f.svc.ApplySolution(ctx, id, "impute_median:satisfaction")
	require.NoError(t, err)

	snap, err := f.svc.ApplySolution(ctx, id, "impute_mean:satisfaction")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStaleSolution)

	assert.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())
	assert.False(t, snap.Terminated)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, core.KindStaleSolution, snap.Errors[0].Kind)
	assert.True(t, snap.Errors[0].Recoverable)

	waiting := snap.Current.Payload.(*studio.WaitingForIntent)
	assert.Equal(t, uint64(2), waiting.Table.Version, "recovery keeps the treated table")

	snap, err = f.svc.SubmitGoal(ctx, id, "What drives revenue?")
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseAnswerReady, snap.Phase())
}

func TestStudio_NoTestablePredictorRecovers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	revenue := make([]float64, 30)
	segment := make([]string, 30)
	for i := range revenue {
		revenue[i] = 100 + float64(i)*12.5
		segment[i] = "retail"
	}
	id := f.profiled(t, table.MustNew("flat.csv",
		table.FloatColumn("revenue", revenue),
		table.StringColumn("segment", segment),
	))

	snap, err := f.svc.SubmitGoal(ctx, id, "What drives revenue?")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsupportedTarget)

	assert.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())
	assert.False(t, snap.Terminated)
	assert.NotContains(t, phases(snap), studio.PhaseDriverRanked)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, core.KindUnsupportedTarget, snap.Errors[0].Kind)
	assert.Empty(t, f.sink.OfType(event.AnalysisCompleted))
}

func TestStudio_UnknownSolution(t *testing.T) {
	f := newFixture(t, nil)
	id := f.profiled(t, customers(t))

	snap, err := f.svc.ApplySolution(context.Background(), id, "impute_mode:nothing")
	assert.ErrorIs(t, err, core.ErrSolutionNotFound)
	assert.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())
	assert.Empty(t, snap.Errors)
}

func TestStudio_PlanBranch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))

	snap, err := f.svc.SubmitGoal(ctx, id, "Give me an overview of the data")
	require.NoError(t, err)
	require.Equal(t, studio.PhasePlanReady, snap.Phase())
	ready := snap.Current.Payload.(*studio.PlanReady)
	require.NotEmpty(t, ready.Plan.Steps)

	snap, err = f.svc.ApprovePlan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseCompleted, snap.Phase())

	done := snap.Current.Payload.(*studio.Completed)
	assert.Len(t, done.Execution.Results, len(ready.Plan.Steps))
	assert.Zero(t, done.Execution.Failures())

	assert.Len(t, f.sink.OfType(event.StepStarted), len(ready.Plan.Steps))
	assert.Len(t, f.sink.OfType(event.StepCompleted), len(ready.Plan.Steps))
	assert.Len(t, f.sink.OfType(event.AnalysisCompleted), 1)
	assert.True(t, strings.HasPrefix(snap.Transcript[len(snap.Transcript)-1].Content, "Plan finished"))
}

func TestStudio_CorruptedUploadTerminates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	snap, err := f.svc.Upload(ctx, sess.ID, "broken.csv", strings.NewReader("a,b\n"))
	assert.ErrorIs(t, err, core.ErrCorruptedUpload)
	assert.Equal(t, studio.PhaseError, snap.Phase())
	assert.True(t, snap.Terminated)

	_, err = f.svc.StartAnalysis(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrSessionTerminated)

	snap, err = f.svc.Reset(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseLanding, snap.Phase())
	assert.False(t, snap.Terminated)
	assert.NotEmpty(t, snap.Transcript)
}

func TestStudio_RejectsOutOfOrderOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx)
	require.NoError(t, err)

	snap, err := f.svc.StartAnalysis(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, studio.PhaseLanding, snap.Phase())
	assert.Empty(t, snap.Errors)

	_, err = f.svc.SubmitGoal(ctx, sess.ID, "What drives revenue?")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = f.svc.ApprovePlan(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	id := f.profiled(t, customers(t))
	_, err = f.svc.SubmitGoal(ctx, id, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestStudio_NavigateBackAndAskAgain(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))

	_, err := f.svc.SubmitGoal(ctx, id, "What drives revenue?")
	require.NoError(t, err)

	_, err = f.svc.NavigateBack(ctx, id, studio.PhaseCompleted)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	snap, err := f.svc.NavigateBack(ctx, id, studio.PhaseWaitingForIntent)
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseWaitingForIntent, snap.Phase())
	assert.Len(t, snap.History, 4)

	snap, err = f.svc.SubmitGoal(ctx, id, "Why do customers churn?")
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseAnswerReady, snap.Phase())
	assert.Equal(t, "churned", snap.Current.Payload.(*studio.AnswerReady).Resolution.Target)
}

func TestStudio_PersistsSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := f.profiled(t, customers(t))
	_, err := f.svc.SubmitGoal(ctx, id, "What drives revenue?")
	require.NoError(t, err)

	restarted, err := NewStudioService(Dependencies{
		Sessions: session.NewManager(f.store, time.Hour),
		Loader:   tabular.NewLoader(),
	}, Settings{Weights: ranking.DefaultWeights()})
	require.NoError(t, err)

	snap, err := restarted.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, studio.PhaseAnswerReady, snap.Phase())

	require.NoError(t, restarted.DeleteSession(ctx, id))
	_, err = restarted.Snapshot(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
