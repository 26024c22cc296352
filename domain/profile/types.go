package profile

import (
	"gostudio/domain/core"
	"gostudio/domain/table"
)

// Role is the semantic role a column plays in analysis.
type Role string

const (
	RoleIdentifier    Role = "IDENTIFIER"
	RoleNumericMetric Role = "NUMERIC_METRIC"
	RoleCategorical   Role = "CATEGORICAL_DIMENSION"
	RoleDatetime      Role = "DATETIME"
	RoleBoolean       Role = "BOOLEAN"
	RoleText          Role = "TEXT"
)

// AllRoles lists roles in reporting order.
var AllRoles = []Role{RoleIdentifier, RoleNumericMetric, RoleCategorical, RoleDatetime, RoleBoolean, RoleText}

// NumericSummary holds distribution statistics for numeric columns.
type NumericSummary struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// FrequencySummary holds the dominant value for non-numeric columns.
type FrequencySummary struct {
	TopValue     string `json:"top_value"`
	TopFrequency int    `json:"top_frequency"`
}

// ColumnEntry is the profile of a single column.
type ColumnEntry struct {
	Name           string            `json:"name"`
	Role           Role              `json:"role"`
	Datatype       table.Kind        `json:"datatype"`
	MissingCount   int               `json:"missing_count"`
	MissingPercent float64           `json:"missing_percent"`
	UniqueCount    int               `json:"unique_count"`
	Numeric        *NumericSummary   `json:"numeric,omitempty"`
	Frequency      *FrequencySummary `json:"frequency,omitempty"`
}

// HasMissing reports whether the column has at least one null.
func (e ColumnEntry) HasMissing() bool { return e.MissingCount > 0 }

// Profile is the dataset-level profile, tied to one table version.
type Profile struct {
	TableVersion   uint64                  `json:"table_version"`
	RowCount       int                     `json:"row_count"`
	ColumnCount    int                     `json:"column_count"`
	DuplicateRows  int                     `json:"duplicate_rows"`
	CandidateKeys  []string                `json:"candidate_keys"`
	Columns        []ColumnEntry           `json:"columns"`
	ColumnsByRole  map[Role][]string       `json:"columns_by_role"`
	Warnings       []core.ProfilingWarning `json:"warnings,omitempty"`
	MissingTotal   int                     `json:"missing_total"`
	MissingPercent float64                 `json:"missing_percent"`
}

// Entry looks up a column entry by name.
func (p *Profile) Entry(name string) (ColumnEntry, bool) {
	for _, e := range p.Columns {
		if e.Name == name {
			return e, true
		}
	}
	return ColumnEntry{}, false
}

// ColumnsWithRole returns column names holding role, in table order.
func (p *Profile) ColumnsWithRole(role Role) []string {
	return p.ColumnsByRole[role]
}

// IncompleteColumns returns entries that contain nulls, in table order.
func (p *Profile) IncompleteColumns() []ColumnEntry {
	var out []ColumnEntry
	for _, e := range p.Columns {
		if e.HasMissing() {
			out = append(out, e)
		}
	}
	return out
}
