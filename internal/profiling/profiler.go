package profiling

import (
	"fmt"
	"math"
	"sort"

	"gostudio/domain/core"
	"gostudio/domain/profile"
	"gostudio/domain/table"
)

// Config holds the cardinality thresholds used for role assignment.
type Config struct {
	NumericCategoricalMax int     // numeric columns with at most this many distinct values are dimensions
	CategoricalMax        int     // non-numeric columns with at most this many distinct values are dimensions
	IdentifierUniqueRatio float64 // uniqueness required for name-hinted identifiers
	IdentifierMinRows     int     // unhinted unique strings only count as identifiers on tables this large
	DatetimeParseRatio    float64 // share of text values that must parse as dates
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		NumericCategoricalMax: 10,
		CategoricalMax:        50,
		IdentifierUniqueRatio: 0.98,
		IdentifierMinRows:     20,
		DatetimeParseRatio:    0.8,
	}
}

// Profiler computes column roles and dataset aggregates for a table.
type Profiler struct {
	cfg Config
}

// NewProfiler creates a profiler; zero-valued thresholds fall back to defaults.
func NewProfiler(cfg Config) *Profiler {
	def := DefaultConfig()
	if cfg.NumericCategoricalMax <= 0 {
		cfg.NumericCategoricalMax = def.NumericCategoricalMax
	}
	if cfg.CategoricalMax <= 0 {
		cfg.CategoricalMax = def.CategoricalMax
	}
	if cfg.IdentifierUniqueRatio <= 0 || cfg.IdentifierUniqueRatio > 1 {
		cfg.IdentifierUniqueRatio = def.IdentifierUniqueRatio
	}
	if cfg.IdentifierMinRows <= 0 {
		cfg.IdentifierMinRows = def.IdentifierMinRows
	}
	if cfg.DatetimeParseRatio <= 0 || cfg.DatetimeParseRatio > 1 {
		cfg.DatetimeParseRatio = def.DatetimeParseRatio
	}
	return &Profiler{cfg: cfg}
}

// Profile never fails: problems with individual columns become warnings.
func (p *Profiler) Profile(t *table.Table) *profile.Profile {
	out := &profile.Profile{
		TableVersion:  t.Version,
		RowCount:      t.NumRows(),
		ColumnCount:   t.NumCols(),
		CandidateKeys: []string{},
		Columns:       make([]profile.ColumnEntry, 0, t.NumCols()),
		ColumnsByRole: make(map[profile.Role][]string, len(profile.AllRoles)),
	}
	for _, role := range profile.AllRoles {
		out.ColumnsByRole[role] = []string{}
	}
	out.Warnings = append(out.Warnings, t.Warnings...)

	for _, col := range t.Columns {
		entry, warnings := p.profileColumn(col)
		out.Columns = append(out.Columns, entry)
		out.ColumnsByRole[entry.Role] = append(out.ColumnsByRole[entry.Role], entry.Name)
		out.Warnings = append(out.Warnings, warnings...)
		out.MissingTotal += entry.MissingCount
		if entry.MissingCount == 0 && entry.UniqueCount == out.RowCount && out.RowCount > 0 {
			out.CandidateKeys = append(out.CandidateKeys, entry.Name)
		}
	}

	out.DuplicateRows = countDuplicateRows(t)
	if cells := out.RowCount * out.ColumnCount; cells > 0 {
		out.MissingPercent = percent(out.MissingTotal, cells)
	}
	if out.RowCount == 0 {
		out.Warnings = append(out.Warnings, core.ProfilingWarning{Message: "table has no rows"})
	}
	return out
}

func (p *Profiler) profileColumn(col *table.Column) (profile.ColumnEntry, []core.ProfilingWarning) {
	n := col.Len()
	missing := col.NullCount()
	distinct := col.Distinct()
	entry := profile.ColumnEntry{
		Name:         col.Name,
		Datatype:     col.Kind,
		MissingCount: missing,
		UniqueCount:  len(distinct),
	}
	if n > 0 {
		entry.MissingPercent = percent(missing, n)
	}

	var warnings []core.ProfilingWarning
	if n > 0 && missing == n {
		entry.Role = profile.RoleText
		warnings = append(warnings, core.ProfilingWarning{Column: col.Name, Message: "column is entirely empty"})
		return entry, warnings
	}

	entry.Role = p.assignRole(col, entry)

	switch {
	case entry.Role == profile.RoleIdentifier:
	case entry.Role == profile.RoleNumericMetric:
		summary, err := numericSummary(col)
		if err != nil {
			warnings = append(warnings, core.ProfilingWarning{Column: col.Name, Message: fmt.Sprintf("summary statistics unavailable: %v", err)})
		} else {
			entry.Numeric = summary
		}
	default:
		entry.Frequency = frequencySummary(col)
	}
	return entry, warnings
}

// assignRole applies the role policy in priority order.
func (p *Profiler) assignRole(col *table.Column, entry profile.ColumnEntry) profile.Role {
	n := col.Len()
	if p.isIdentifier(col, entry) {
		return profile.RoleIdentifier
	}
	if col.Kind == table.KindFloat && entry.UniqueCount > p.cfg.NumericCategoricalMax {
		return profile.RoleNumericMetric
	}
	if col.Kind == table.KindTime {
		return profile.RoleDatetime
	}
	if col.Kind == table.KindString && n > 0 && parseableTimeRatio(col) >= p.cfg.DatetimeParseRatio {
		return profile.RoleDatetime
	}
	if col.Kind == table.KindBool || entry.UniqueCount == 2 {
		return profile.RoleBoolean
	}
	if entry.UniqueCount <= p.cfg.CategoricalMax {
		return profile.RoleCategorical
	}
	return profile.RoleText
}

func (p *Profiler) isIdentifier(col *table.Column, entry profile.ColumnEntry) bool {
	n := col.Len()
	if n == 0 || entry.MissingCount > 0 || col.Kind == table.KindBool || col.Kind == table.KindTime {
		return false
	}
	hinted := hasIdentifierHint(col.Name)
	if hinted && float64(entry.UniqueCount)/float64(n) >= p.cfg.IdentifierUniqueRatio {
		return true
	}
	if entry.UniqueCount != n {
		return false
	}
	return col.Kind == table.KindString && n >= p.cfg.IdentifierMinRows && whitespaceFree(col)
}

func parseableTimeRatio(col *table.Column) float64 {
	valid, parsed := 0, 0
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			continue
		}
		valid++
		if _, ok := table.ParseTime(col.Strings[i]); ok {
			parsed++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(parsed) / float64(valid)
}

func whitespaceFree(col *table.Column) bool {
	for i := 0; i < col.Len(); i++ {
		for _, r := range col.Strings[i] {
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				return false
			}
		}
	}
	return true
}

func frequencySummary(col *table.Column) *profile.FrequencySummary {
	counts := make(map[string]int)
	for i := 0; i < col.Len(); i++ {
		if !col.IsNull(i) {
			counts[col.StringAt(i)]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	top := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[top] {
			top = k
		}
	}
	return &profile.FrequencySummary{TopValue: top, TopFrequency: counts[top]}
}

func countDuplicateRows(t *table.Table) int {
	seen := make(map[string]struct{}, t.NumRows())
	dups := 0
	for i := 0; i < t.NumRows(); i++ {
		key := t.RowKey(i)
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
