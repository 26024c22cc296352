package plan

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/domain/core"
	"gostudio/domain/event"
	"gostudio/domain/intent"
	"gostudio/domain/plan"
	"gostudio/domain/profile"
	"gostudio/domain/table"
	"gostudio/internal/profiling"
	"gostudio/internal/testkit"
)

func customerFixture() (*table.Table, *profile.Profile, *profiling.Profiler) {
	profiler := profiling.NewProfiler(profiling.DefaultConfig())
	tbl := testkit.NewCustomerDataGenerator(testkit.DefaultCustomerConfig()).Generate()
	return tbl, profiler.Profile(tbl), profiler
}

func operations(pl *plan.Plan) []plan.Operation {
	out := make([]plan.Operation, len(pl.Steps))
	for i, s := range pl.Steps {
		out[i] = s.Operation
	}
	return out
}

func TestPlanner_Descriptive(t *testing.T) {
	_, p, _ := customerFixture()

	pl, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)

	assert.Equal(t, []plan.Operation{plan.OpSummary, plan.OpGroupBy, plan.OpCorrelation, plan.OpTrend}, operations(pl))
	assert.Equal(t, p.TableVersion, pl.TableVersion)
	assert.Equal(t, "step_1", pl.Steps[0].ID)
	assert.Equal(t, "step_4", pl.Steps[3].ID)

	group := pl.Steps[1].Params
	assert.Equal(t, "region", group.GroupBy)
	assert.Equal(t, "tenure_months", group.TargetColumn)
	assert.Equal(t, "mean", group.Agg)
	assert.Equal(t, "signup_date", pl.Steps[3].Params.DatetimeColumn)
}

func TestPlanner_DataCleaning(t *testing.T) {
	_, p, _ := customerFixture()

	pl, err := NewPlanner().Plan(intent.CategoryDataCleaning, p)
	require.NoError(t, err)
	assert.Equal(t, []plan.Operation{plan.OpCleanData, plan.OpSummary}, operations(pl))
	assert.Equal(t, []string{plan.CleanDropDuplicates, plan.CleanFillNumeric, plan.CleanFillCategorical}, pl.Steps[0].Params.Operations)
}

func TestPlanner_RejectsTargetedIntents(t *testing.T) {
	_, p, _ := customerFixture()
	for _, c := range []intent.Category{intent.CategoryDiagnostic, intent.CategoryPredictive, intent.CategoryExplanatory} {
		_, err := NewPlanner().Plan(c, p)
		assert.Error(t, err, c)
	}
}

func TestPlanner_Deterministic(t *testing.T) {
	_, p, _ := customerFixture()
	first, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)
	second, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExecutor_DescriptivePlan(t *testing.T) {
	tbl, p, profiler := customerFixture()
	pl, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)

	sink := testkit.NewRecordingSink()
	id := core.NewSessionID()
	exec, err := NewExecutor(profiler).Execute(context.Background(), id, tbl, p, pl, sink)
	require.NoError(t, err)

	require.Len(t, exec.Results, 4)
	assert.Zero(t, exec.Failures())
	for i, res := range exec.Results {
		assert.Equal(t, pl.Steps[i].ID, res.StepID)
		assert.Equal(t, plan.StatusSuccess, res.Status, res.Error)
		assert.NotEmpty(t, res.Summary)
	}
	assert.Same(t, tbl, exec.Table, "read-only steps keep the table")

	assert.Equal(t, []event.Type{
		event.StepStarted, event.StepCompleted,
		event.StepStarted, event.StepCompleted,
		event.StepStarted, event.StepCompleted,
		event.StepStarted, event.StepCompleted,
		event.AnalysisCompleted,
	}, sink.Types())
	for _, e := range sink.Events() {
		assert.Equal(t, id, e.SessionID)
	}
	completed := sink.OfType(event.StepCompleted)
	assert.Equal(t, exec.Results[0].Summary, completed[0].Summary)

	summary := exec.Results[0]
	assert.Equal(t, 200.0, summary.Metrics["rows"])
	assert.Greater(t, summary.Metrics["missing_cells"], 50.0)

	groups := exec.Results[1]
	assert.Equal(t, 4.0, groups.Metrics["groups"])
	require.Len(t, groups.Series, 4)
	assert.GreaterOrEqual(t, groups.Series[0].Value, groups.Series[3].Value)

	trend := exec.Results[3]
	assert.Equal(t, 12.0, trend.Metrics["periods"])
	assert.Equal(t, "2024-01", trend.Series[0].Label)
}

func TestExecutor_CleanDataReprofiles(t *testing.T) {
	tbl, p, profiler := customerFixture()
	pl, err := NewPlanner().Plan(intent.CategoryDataCleaning, p)
	require.NoError(t, err)

	exec, err := NewExecutor(profiler).Execute(context.Background(), core.NewSessionID(), tbl, p, pl, testkit.NewRecordingSink())
	require.NoError(t, err)
	require.Len(t, exec.Results, 2)
	assert.Zero(t, exec.Failures())

	assert.Greater(t, exec.Table.Version, tbl.Version)
	assert.Equal(t, exec.Table.Version, exec.Profile.TableVersion)
	assert.Zero(t, exec.Table.NullCount())
	assert.Equal(t, 200, exec.Table.NumRows())

	clean := exec.Results[0].Metrics
	assert.Equal(t, 0.0, clean["duplicates_removed"])
	assert.Equal(t, 0.0, clean["missing_after"])
	assert.Equal(t, float64(exec.Table.Version), clean["table_version"])

	assert.Equal(t, 0.0, exec.Results[1].Metrics["missing_cells"], "summary runs on the cleaned table")

	assert.Equal(t, uint64(1), tbl.Version, "input table is untouched")
	assert.Greater(t, tbl.NullCount(), 0)
}

func TestExecutor_CleanDataDropsDuplicates(t *testing.T) {
	profiler := profiling.NewProfiler(profiling.DefaultConfig())
	tbl := table.MustNew("dupes.csv",
		table.StringColumn("city", []string{"Austin", "Austin", "Boston", "", "Boston"}),
		table.FloatColumn("sales", []float64{1, 1, math.NaN(), 4, 5}),
	)
	p := profiler.Profile(tbl)
	pl := &plan.Plan{
		Category:     intent.CategoryDataCleaning,
		TableVersion: tbl.Version,
		Steps: []plan.Step{{ID: "step_1", Operation: plan.OpCleanData, Params: plan.Params{
			Operations: []string{plan.CleanDropDuplicates, plan.CleanFillNumeric},
		}}},
	}

	exec, err := NewExecutor(profiler).Execute(context.Background(), core.NewSessionID(), tbl, p, pl, testkit.NewRecordingSink())
	require.NoError(t, err)
	require.False(t, exec.Results[0].Failed(), exec.Results[0].Error)

	assert.Equal(t, 1.0, exec.Results[0].Metrics["duplicates_removed"])
	assert.Equal(t, 4, exec.Table.NumRows())
	assert.Equal(t, exec.Table.Version, exec.Profile.TableVersion)

	sales, ok := exec.Table.Column("sales")
	require.True(t, ok)
	assert.Zero(t, sales.NullCount())
	v, ok := sales.FloatAt(1)
	require.True(t, ok)
	assert.Equal(t, 4.0, v, "median of 1, 4, 5")
}

func TestExecutor_CleanDataCountsFillsAndDropsApart(t *testing.T) {
	profiler := profiling.NewProfiler(profiling.DefaultConfig())
	tbl := table.MustNew("dupes.csv",
		table.StringColumn("city", []string{"Austin", "Austin", "Boston", "Chicago", "Denver"}),
		table.FloatColumn("sales", []float64{math.NaN(), math.NaN(), 3, 5, 7}),
	)
	p := profiler.Profile(tbl)
	pl := &plan.Plan{
		Category:     intent.CategoryDataCleaning,
		TableVersion: tbl.Version,
		Steps: []plan.Step{{ID: "step_1", Operation: plan.OpCleanData, Params: plan.Params{
			Operations: []string{plan.CleanDropDuplicates, plan.CleanFillNumeric},
		}}},
	}

	exec, err := NewExecutor(profiler).Execute(context.Background(), core.NewSessionID(), tbl, p, pl, testkit.NewRecordingSink())
	require.NoError(t, err)
	res := exec.Results[0]
	require.False(t, res.Failed(), res.Error)

	assert.Equal(t, 2.0, res.Metrics["missing_before"])
	assert.Equal(t, 1.0, res.Metrics["missing_dropped"])
	assert.Equal(t, 1.0, res.Metrics["missing_filled"])
	assert.Equal(t, 0.0, res.Metrics["missing_after"])
	assert.Equal(t, "Removed 1 duplicate rows (1 missing values went with them) and filled 1 missing values.", res.Summary)
}

func TestExecutor_FailedStepContinues(t *testing.T) {
	tbl, p, profiler := customerFixture()
	pl := &plan.Plan{
		Category:     intent.CategoryDescriptive,
		TableVersion: tbl.Version,
		Steps: []plan.Step{
			{ID: "step_1", Operation: plan.OpGroupBy, Params: plan.Params{GroupBy: "missing_column", TargetColumn: "revenue"}},
			{ID: "step_2", Operation: plan.OpSummary},
		},
	}

	sink := testkit.NewRecordingSink()
	exec, err := NewExecutor(profiler).Execute(context.Background(), core.NewSessionID(), tbl, p, pl, sink)
	require.NoError(t, err)

	require.Len(t, exec.Results, 2)
	assert.True(t, exec.Results[0].Failed())
	assert.Contains(t, exec.Results[0].Error, "missing_column")
	assert.False(t, exec.Results[1].Failed())
	assert.Equal(t, 1, exec.Failures())

	assert.Equal(t, []event.Type{
		event.StepStarted, event.StepFailed,
		event.StepStarted, event.StepCompleted,
		event.AnalysisCompleted,
	}, sink.Types())
	failed := sink.OfType(event.StepFailed)
	assert.Equal(t, "step_1", failed[0].StepID)
	assert.NotEmpty(t, failed[0].Error)

	done := sink.OfType(event.AnalysisCompleted)
	assert.Equal(t, "1 of 2 steps succeeded", done[0].Summary)
}

func TestExecutor_RejectsStalePlan(t *testing.T) {
	tbl, p, profiler := customerFixture()
	pl, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)
	pl.TableVersion = tbl.Version + 1

	sink := testkit.NewRecordingSink()
	_, err = NewExecutor(profiler).Execute(context.Background(), core.NewSessionID(), tbl, p, pl, sink)
	assert.ErrorIs(t, err, core.ErrInconsistentState)
	assert.Empty(t, sink.Events())
}

func TestExecutor_StopsOnCancellation(t *testing.T) {
	tbl, p, profiler := customerFixture()
	pl, err := NewPlanner().Plan(intent.CategoryDescriptive, p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewExecutor(profiler).Execute(ctx, core.NewSessionID(), tbl, p, pl, testkit.NewRecordingSink())
	assert.ErrorIs(t, err, context.Canceled)
}
