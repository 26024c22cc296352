package plan

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	gonumstat "gonum.org/v1/gonum/stat"

	"gostudio/domain/core"
	"gostudio/domain/event"
	"gostudio/domain/plan"
	"gostudio/domain/profile"
	"gostudio/domain/table"
	"gostudio/domain/treatment"
	"gostudio/internal"
	"gostudio/internal/profiling"
	treatmentengine "gostudio/internal/treatment"
	"gostudio/ports"
)

// maxSeries caps the number of points a step reports
const maxSeries = 20

// Executor runs plan steps in order against the session's table
type Executor struct {
	profiler  *profiling.Profiler
	treatment *treatmentengine.Engine
	logger    *internal.Logger
}

// NewExecutor creates an executor that re-profiles with profiler
func NewExecutor(profiler *profiling.Profiler) *Executor {
	return &Executor{
		profiler:  profiler,
		treatment: treatmentengine.NewEngine(profiler),
		logger:    internal.DefaultLogger,
	}
}

// Execute runs every step sequentially. A failing step is recorded and execution
// continues; only cancellation or a plan built for another table version aborts.
func (x *Executor) Execute(ctx context.Context, sessionID core.SessionID, t *table.Table, p *profile.Profile, pl *plan.Plan, sink ports.EventSink) (*plan.Execution, error) {
	if pl.TableVersion != t.Version || p.TableVersion != t.Version {
		return nil, fmt.Errorf("%w: plan built for table version %d, table is version %d", core.ErrInconsistentState, pl.TableVersion, t.Version)
	}

	exec := &plan.Execution{Results: make([]plan.StepResult, 0, len(pl.Steps)), Table: t, Profile: p}
	for _, step := range pl.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		started := event.New(sessionID, event.StepStarted)
		started.StepID, started.Operation = step.ID, string(step.Operation)
		sink.Publish(started)

		begin := time.Now()
		res, err := x.runStep(exec, step)
		if err != nil {
			res = plan.StepResult{
				StepID:    step.ID,
				Operation: step.Operation,
				Status:    plan.StatusFailed,
				Summary:   fmt.Sprintf("%s failed: %v", step.Operation, err),
				Error:     err.Error(),
			}
			x.logger.Warn("[Executor] step %s (%s) failed: %v", step.ID, step.Operation, err)

			failed := event.New(sessionID, event.StepFailed)
			failed.StepID, failed.Operation, failed.Error = step.ID, string(step.Operation), err.Error()
			sink.Publish(failed)
		} else {
			x.logger.Debug("[Executor] step %s (%s) completed in %v", step.ID, step.Operation, time.Since(begin))

			completed := event.New(sessionID, event.StepCompleted)
			completed.StepID, completed.Operation, completed.Summary = step.ID, string(step.Operation), res.Summary
			completed.Data = res.Metrics
			sink.Publish(completed)
		}
		exec.Results = append(exec.Results, res)
	}

	done := event.New(sessionID, event.AnalysisCompleted)
	done.Summary = fmt.Sprintf("%d of %d steps succeeded", len(exec.Results)-exec.Failures(), len(exec.Results))
	done.Data = exec.Results
	sink.Publish(done)

	x.logger.Info("[Executor] plan for %s finished: %s", pl.Category, done.Summary)
	return exec, nil
}

func (x *Executor) runStep(exec *plan.Execution, step plan.Step) (plan.StepResult, error) {
	res := plan.StepResult{StepID: step.ID, Operation: step.Operation, Status: plan.StatusSuccess}
	var err error
	switch step.Operation {
	case plan.OpSummary:
		err = summarize(exec.Table, exec.Profile, &res)
	case plan.OpGroupBy:
		err = groupBy(exec.Table, step.Params, &res)
	case plan.OpCorrelation:
		err = correlate(exec.Table, exec.Profile, &res)
	case plan.OpTrend:
		err = trend(exec.Table, step.Params, &res)
	case plan.OpCleanData:
		err = x.clean(exec, step.Params, &res)
	default:
		err = fmt.Errorf("unknown operation %q", step.Operation)
	}
	return res, err
}

// ============================================================================
// SUMMARY
// ============================================================================

func summarize(t *table.Table, p *profile.Profile, res *plan.StepResult) error {
	res.Metrics = map[string]float64{
		"rows":            float64(p.RowCount),
		"columns":         float64(p.ColumnCount),
		"missing_cells":   float64(p.MissingTotal),
		"missing_percent": p.MissingPercent,
		"duplicate_rows":  float64(p.DuplicateRows),
	}
	for _, entry := range p.Columns {
		if entry.Numeric != nil {
			res.Series = append(res.Series, plan.Point{Label: entry.Name + " mean", Value: entry.Numeric.Mean})
		}
	}
	if len(res.Series) > maxSeries {
		res.Series = res.Series[:maxSeries]
	}
	res.Summary = fmt.Sprintf("Summarized %d rows across %d columns (%.1f%% missing cells).", p.RowCount, p.ColumnCount, p.MissingPercent)
	return nil
}

// ============================================================================
// GROUP BY
// ============================================================================

func groupBy(t *table.Table, params plan.Params, res *plan.StepResult) error {
	key, ok := t.Column(params.GroupBy)
	if !ok {
		return fmt.Errorf("valid group_by column is required, got %q", params.GroupBy)
	}
	target, ok := t.Column(params.TargetColumn)
	if !ok || !target.IsNumeric() {
		return fmt.Errorf("valid numeric target_column is required, got %q", params.TargetColumn)
	}
	agg := params.Agg
	if agg == "" {
		agg = "mean"
	}

	groups := make(map[string][]float64)
	for i := 0; i < t.NumRows(); i++ {
		if key.IsNull(i) || target.IsNull(i) {
			continue
		}
		v, _ := target.FloatAt(i)
		groups[key.StringAt(i)] = append(groups[key.StringAt(i)], v)
	}
	if len(groups) == 0 {
		return fmt.Errorf("no rows have both %s and %s", key.Name, target.Name)
	}

	for label, values := range groups {
		var value float64
		var err error
		switch agg {
		case "mean":
			value, err = stats.Mean(values)
		case "sum":
			value, err = stats.Sum(values)
		case "count":
			value = float64(len(values))
		default:
			return fmt.Errorf("unsupported aggregation %q", agg)
		}
		if err != nil {
			return fmt.Errorf("aggregating %s: %w", label, err)
		}
		res.Series = append(res.Series, plan.Point{Label: label, Value: value})
	}
	sort.Slice(res.Series, func(i, j int) bool {
		if res.Series[i].Value != res.Series[j].Value {
			return res.Series[i].Value > res.Series[j].Value
		}
		return res.Series[i].Label < res.Series[j].Label
	})
	if len(res.Series) > maxSeries {
		res.Series = res.Series[:maxSeries]
	}
	res.Metrics = map[string]float64{"groups": float64(len(groups))}
	top := res.Series[0]
	res.Summary = fmt.Sprintf("Computed %s of %s by %s; highest is %s (%.2f).", agg, target.Name, key.Name, top.Label, top.Value)
	return nil
}

// ============================================================================
// CORRELATION
// ============================================================================

func correlate(t *table.Table, p *profile.Profile, res *plan.StepResult) error {
	names := p.ColumnsWithRole(profile.RoleNumericMetric)
	if len(names) < 2 {
		return fmt.Errorf("at least two numeric columns are required for correlation")
	}

	strongest := math.NaN()
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, _ := t.Column(names[i])
			b, _ := t.Column(names[j])
			var xs, ys []float64
			for r := 0; r < t.NumRows(); r++ {
				x, okx := a.FloatAt(r)
				y, oky := b.FloatAt(r)
				if okx && oky {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			if len(xs) < 3 {
				continue
			}
			r := gonumstat.Correlation(xs, ys, nil)
			if math.IsNaN(r) {
				continue
			}
			res.Series = append(res.Series, plan.Point{Label: a.Name + " ~ " + b.Name, Value: r})
			if math.IsNaN(strongest) || math.Abs(r) > math.Abs(strongest) {
				strongest = r
			}
		}
	}
	if len(res.Series) == 0 {
		return fmt.Errorf("no numeric pair has enough complete rows")
	}
	sort.SliceStable(res.Series, func(i, j int) bool {
		return math.Abs(res.Series[i].Value) > math.Abs(res.Series[j].Value)
	})
	if len(res.Series) > maxSeries {
		res.Series = res.Series[:maxSeries]
	}
	res.Metrics = map[string]float64{"pairs": float64(len(res.Series)), "strongest_value": strongest}
	res.Summary = fmt.Sprintf("Strongest correlation: %s (r=%.3f).", res.Series[0].Label, res.Series[0].Value)
	return nil
}

// ============================================================================
// TREND
// ============================================================================

func trend(t *table.Table, params plan.Params, res *plan.StepResult) error {
	dates, ok := t.Column(params.DatetimeColumn)
	if !ok {
		return fmt.Errorf("valid datetime_column is required, got %q", params.DatetimeColumn)
	}
	target, hasTarget := t.Column(params.TargetColumn)
	hasTarget = hasTarget && target.IsNumeric()

	buckets := make(map[string][]float64)
	for i := 0; i < t.NumRows(); i++ {
		if dates.IsNull(i) {
			continue
		}
		var at time.Time
		if dates.Kind == table.KindTime {
			at = dates.Times[i]
		} else if parsed, ok := table.ParseTime(dates.StringAt(i)); ok {
			at = parsed
		} else {
			continue
		}
		month := at.Format("2006-01")
		if !hasTarget {
			buckets[month] = append(buckets[month], 1)
			continue
		}
		if v, ok := target.FloatAt(i); ok {
			buckets[month] = append(buckets[month], v)
		}
	}
	if len(buckets) == 0 {
		return fmt.Errorf("no parseable datetime values in %s", dates.Name)
	}

	months := make([]string, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Strings(months)
	label := "monthly row count"
	if hasTarget {
		label = "monthly mean of " + target.Name
	}
	for _, m := range months {
		value := float64(len(buckets[m]))
		if hasTarget {
			value, _ = stats.Mean(buckets[m])
		}
		res.Series = append(res.Series, plan.Point{Label: m, Value: value})
	}
	res.Metrics = map[string]float64{"periods": float64(len(months))}
	if len(res.Series) > 1 {
		first, last := res.Series[0].Value, res.Series[len(res.Series)-1].Value
		res.Metrics["change"] = last - first
	}
	if len(res.Series) > maxSeries {
		res.Series = res.Series[len(res.Series)-maxSeries:]
	}
	res.Summary = fmt.Sprintf("Computed %s over %d months.", label, len(months))
	return nil
}

// ============================================================================
// CLEAN DATA
// ============================================================================

// clean produces a new table version and re-profiles it before later steps run
func (x *Executor) clean(exec *plan.Execution, params plan.Params, res *plan.StepResult) error {
	t, p := exec.Table, exec.Profile
	rowsBefore, missingBefore := t.NumRows(), t.NullCount()
	duplicates, dropped, filled := 0, 0, 0

	for _, op := range params.Operations {
		var sol *treatment.Solution
		switch op {
		case plan.CleanDropDuplicates:
			seen := make(map[string]struct{}, t.NumRows())
			next := t.KeepRows(func(row int) bool {
				key := t.RowKey(row)
				if _, dup := seen[key]; dup {
					return false
				}
				seen[key] = struct{}{}
				return true
			})
			duplicates = t.NumRows() - next.NumRows()
			if duplicates > 0 {
				dropped += t.NullCount() - next.NullCount()
				t, p = next, x.profiler.Profile(next)
			}
		case plan.CleanFillNumeric:
			sol = fillSolution(p, treatment.ActionImputeMedian, func(e profile.ColumnEntry) bool {
				return e.Datatype == table.KindFloat
			})
		case plan.CleanFillCategorical:
			sol = fillSolution(p, treatment.ActionImputeMode, func(e profile.ColumnEntry) bool {
				return e.Datatype != table.KindFloat && (e.Role == profile.RoleCategorical || e.Role == profile.RoleBoolean)
			})
		default:
			return fmt.Errorf("unknown cleaning operation %q", op)
		}
		if sol == nil {
			continue
		}
		out, err := x.treatment.Apply(t, p, *sol)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		filled += t.NullCount() - out.Table.NullCount()
		t, p = out.Table, out.Profile
	}

	exec.Table, exec.Profile = t, p
	res.Metrics = map[string]float64{
		"rows_before":        float64(rowsBefore),
		"rows_after":         float64(t.NumRows()),
		"duplicates_removed": float64(duplicates),
		"missing_before":     float64(missingBefore),
		"missing_after":      float64(t.NullCount()),
		"missing_filled":     float64(filled),
		"missing_dropped":    float64(dropped),
		"table_version":      float64(t.Version),
	}
	res.Summary = fmt.Sprintf("Removed %d duplicate rows and filled %d missing values.", duplicates, filled)
	if dropped > 0 {
		res.Summary = fmt.Sprintf("Removed %d duplicate rows (%d missing values went with them) and filled %d missing values.", duplicates, dropped, filled)
	}
	return nil
}

// fillSolution builds one multi-column solution for every incomplete column that
// matches, or nil when none does
func fillSolution(p *profile.Profile, action treatment.ActionKind, match func(profile.ColumnEntry) bool) *treatment.Solution {
	var cols []string
	for _, e := range p.IncompleteColumns() {
		if e.MissingCount < p.RowCount && match(e) {
			cols = append(cols, e.Name)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	return &treatment.Solution{
		ID:           treatmentengine.SolutionID(action, cols),
		Action:       action,
		Columns:      cols,
		TableVersion: p.TableVersion,
	}
}
