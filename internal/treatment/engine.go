package treatment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"gostudio/domain/core"
	"gostudio/domain/profile"
	"gostudio/domain/table"
	"gostudio/domain/treatment"
	"gostudio/internal"
	"gostudio/internal/profiling"
)

// Outcome bundles everything an applied solution produces. The table, its profile
// and the result are only ever returned together.
type Outcome struct {
	Table   *table.Table
	Profile *profile.Profile
	Result  treatment.Result
}

// Engine suggests and applies missing-value remediations.
type Engine struct {
	profiler *profiling.Profiler
	now      func() time.Time
	logger   *internal.Logger
}

// NewEngine creates a treatment engine that re-profiles with profiler.
func NewEngine(profiler *profiling.Profiler) *Engine {
	return &Engine{profiler: profiler, now: core.Now, logger: internal.DefaultLogger}
}

// Apply executes sol against t. Nothing is returned unless every step succeeds.
func (e *Engine) Apply(t *table.Table, p *profile.Profile, sol treatment.Solution) (*Outcome, error) {
	if p.TableVersion != t.Version {
		return nil, fmt.Errorf("%w: profile describes version %d, table is version %d", core.ErrInconsistentState, p.TableVersion, t.Version)
	}
	if sol.TableVersion != t.Version {
		return nil, &core.StaleSolutionError{
			SolutionID: sol.ID,
			Reason:     fmt.Sprintf("generated for table version %d, current version is %d", sol.TableVersion, t.Version),
		}
	}
	if len(sol.Columns) == 0 {
		return nil, &core.StaleSolutionError{SolutionID: sol.ID, Reason: "solution names no columns"}
	}
	cols := make([]*table.Column, len(sol.Columns))
	for i, name := range sol.Columns {
		col, ok := t.Column(name)
		if !ok {
			return nil, &core.StaleSolutionError{SolutionID: sol.ID, Reason: fmt.Sprintf("column %s no longer exists", name)}
		}
		cols[i] = col
	}

	var (
		next    *table.Table
		err     error
		summary string
	)
	switch sol.Action {
	case treatment.ActionDropRows:
		next = t.KeepRows(func(row int) bool {
			for _, c := range cols {
				if c.IsNull(row) {
					return false
				}
			}
			return true
		})
		summary = fmt.Sprintf("Dropped %d rows with missing values", t.NumRows()-next.NumRows())
	case treatment.ActionFlagOnly:
		flags := make([]*table.Column, len(cols))
		for i, c := range cols {
			flags[i] = flagColumn(t, c)
		}
		next, err = t.WithColumns(flags...)
		summary = fmt.Sprintf("Added missing-value indicators for %d column(s)", len(cols))
	default:
		filled := make([]*table.Column, len(cols))
		var notes []string
		for i, c := range cols {
			fc, note, ferr := fill(c, sol)
			if ferr != nil {
				return nil, &core.StaleSolutionError{SolutionID: sol.ID, Reason: ferr.Error()}
			}
			filled[i] = fc
			notes = append(notes, note)
		}
		next, err = t.WithColumns(filled...)
		summary = fmt.Sprintf("Filled %d missing values (%s)", totalNulls(cols), strings.Join(notes, "; "))
	}
	if err != nil {
		return nil, fmt.Errorf("applying %s: %w", sol.ID, err)
	}

	result := treatment.Result{
		SolutionID:          sol.ID,
		Action:              sol.Action,
		RowsBefore:          t.NumRows(),
		RowsAfter:           next.NumRows(),
		MissingBefore:       t.NullCount(),
		MissingAfter:        next.NullCount(),
		ColumnMissingBefore: make(map[string]int, len(cols)),
		ColumnMissingAfter:  make(map[string]int, len(cols)),
		AffectedColumns:     append([]string(nil), sol.Columns...),
		Summary:             summary,
		AppliedAt:           e.now(),
		VersionBefore:       t.Version,
		VersionAfter:        next.Version,
	}
	for _, c := range cols {
		result.ColumnMissingBefore[c.Name] = c.NullCount()
		after, _ := next.Column(c.Name)
		result.ColumnMissingAfter[c.Name] = after.NullCount()
	}

	e.logger.Info("[Treatment] applied %s: rows %d->%d, missing %d->%d (v%d->v%d)",
		sol.ID, result.RowsBefore, result.RowsAfter, result.MissingBefore, result.MissingAfter, t.Version, next.Version)

	return &Outcome{Table: next, Profile: e.profiler.Profile(next), Result: result}, nil
}

// fill returns a copy of c with every null replaced according to sol.
func fill(c *table.Column, sol treatment.Solution) (*table.Column, string, error) {
	out := c.Clone()
	switch sol.Action {
	case treatment.ActionImputeMean, treatment.ActionImputeMedian:
		if c.Kind != table.KindFloat {
			return nil, "", fmt.Errorf("column %s is not numeric", c.Name)
		}
		values := profiling.NonNullFloats(c)
		var v float64
		var err error
		if sol.Action == treatment.ActionImputeMean {
			v, err = stats.Mean(values)
		} else {
			v, err = stats.Median(values)
		}
		if err != nil {
			return nil, "", fmt.Errorf("column %s: %v", c.Name, err)
		}
		for i := range out.Valid {
			if !out.Valid[i] {
				out.Floats[i] = v
				out.Valid[i] = true
			}
		}
		return out, fmt.Sprintf("%s=%s", c.Name, strconv.FormatFloat(v, 'f', 4, 64)), nil

	case treatment.ActionImputeMode:
		src, ok := modeIndex(c)
		if !ok {
			return nil, "", fmt.Errorf("column %s has no values to take a mode from", c.Name)
		}
		for i := range out.Valid {
			if !out.Valid[i] {
				copyCell(out, i, c, src)
			}
		}
		return out, fmt.Sprintf("%s=%s", c.Name, c.StringAt(src)), nil

	case treatment.ActionImputeConstant:
		if sol.Constant == nil {
			return nil, "", fmt.Errorf("no constant given")
		}
		if err := fillConstant(out, *sol.Constant); err != nil {
			return nil, "", err
		}
		return out, fmt.Sprintf("%s=%s", c.Name, *sol.Constant), nil

	case treatment.ActionForwardFill:
		first := -1
		for i := range c.Valid {
			if c.Valid[i] {
				first = i
				break
			}
		}
		if first < 0 {
			return nil, "", fmt.Errorf("column %s has no values to carry forward", c.Name)
		}
		last := first
		for i := range out.Valid {
			if out.Valid[i] {
				last = i
				continue
			}
			copyCell(out, i, out, last)
		}
		return out, fmt.Sprintf("%s carried forward", c.Name), nil
	}
	return nil, "", fmt.Errorf("unknown action %q", sol.Action)
}

// modeIndex finds a row holding the most frequent value; ties go to the smallest value.
func modeIndex(c *table.Column) (int, bool) {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		key := c.StringAt(i)
		if _, seen := first[key]; !seen {
			first[key] = i
		}
		counts[key]++
	}
	if len(counts) == 0 {
		return 0, false
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return first[best], true
}

func copyCell(dst *table.Column, i int, src *table.Column, j int) {
	switch dst.Kind {
	case table.KindFloat:
		dst.Floats[i] = src.Floats[j]
	case table.KindBool:
		dst.Bools[i] = src.Bools[j]
	case table.KindTime:
		dst.Times[i] = src.Times[j]
	default:
		dst.Strings[i] = src.Strings[j]
	}
	dst.Valid[i] = true
}

func fillConstant(c *table.Column, constant string) error {
	for i := range c.Valid {
		if c.Valid[i] {
			continue
		}
		switch c.Kind {
		case table.KindFloat:
			v, ok := table.ParseNumber(constant)
			if !ok {
				return fmt.Errorf("constant %q is not a number", constant)
			}
			c.Floats[i] = v
		case table.KindBool:
			v, ok := table.ParseBool(constant)
			if !ok {
				return fmt.Errorf("constant %q is not a boolean", constant)
			}
			c.Bools[i] = v
		case table.KindTime:
			v, ok := table.ParseTime(constant)
			if !ok {
				return fmt.Errorf("constant %q is not a date", constant)
			}
			c.Times[i] = v
		default:
			c.Strings[i] = constant
		}
		c.Valid[i] = true
	}
	return nil
}

func flagColumn(t *table.Table, c *table.Column) *table.Column {
	name := FlagColumnName(c.Name)
	for n := 2; t.HasColumn(name); n++ {
		name = fmt.Sprintf("%s_%d", FlagColumnName(c.Name), n)
	}
	flags := make([]bool, c.Len())
	for i := range flags {
		flags[i] = c.IsNull(i)
	}
	return table.BoolColumn(name, flags, nil)
}

func totalNulls(cols []*table.Column) int {
	n := 0
	for _, c := range cols {
		n += c.NullCount()
	}
	return n
}
