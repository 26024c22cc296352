package treatment

import (
	"time"
)

// ActionKind is the remediation a solution performs.
type ActionKind string

const (
	ActionDropRows       ActionKind = "drop_rows"
	ActionImputeMean     ActionKind = "impute_mean"
	ActionImputeMedian   ActionKind = "impute_median"
	ActionImputeMode     ActionKind = "impute_mode"
	ActionImputeConstant ActionKind = "impute_constant"
	ActionForwardFill    ActionKind = "forward_fill"
	ActionFlagOnly       ActionKind = "flag_only"
)

// Imputes reports whether the action fills nulls in place.
func (k ActionKind) Imputes() bool {
	switch k {
	case ActionImputeMean, ActionImputeMedian, ActionImputeMode, ActionImputeConstant, ActionForwardFill:
		return true
	}
	return false
}

// Solution is a proposed missing-value remediation for a specific table version.
type Solution struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Action       ActionKind `json:"action"`
	Columns      []string   `json:"columns"`
	Constant     *string    `json:"constant,omitempty"`
	TableVersion uint64     `json:"table_version"`
}

// Result records the effect of one applied solution. Results are never modified.
type Result struct {
	SolutionID          string         `json:"solution_id"`
	Action              ActionKind     `json:"action"`
	RowsBefore          int            `json:"rows_before"`
	RowsAfter           int            `json:"rows_after"`
	MissingBefore       int            `json:"missing_before"`
	MissingAfter        int            `json:"missing_after"`
	ColumnMissingBefore map[string]int `json:"column_missing_before"`
	ColumnMissingAfter  map[string]int `json:"column_missing_after"`
	AffectedColumns     []string       `json:"affected_columns"`
	Summary             string         `json:"summary"`
	AppliedAt           time.Time      `json:"applied_at"`
	VersionBefore       uint64         `json:"version_before"`
	VersionAfter        uint64         `json:"version_after"`
}

// RowsRemoved returns how many rows the treatment dropped.
func (r Result) RowsRemoved() int { return r.RowsBefore - r.RowsAfter }
