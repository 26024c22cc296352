package plan

import (
	"gostudio/domain/intent"
	"gostudio/domain/profile"
	"gostudio/domain/table"
)

// Operation is the kind of work a plan step performs
type Operation string

const (
	OpSummary     Operation = "SUMMARY"
	OpGroupBy     Operation = "GROUPBY"
	OpCorrelation Operation = "CORRELATION"
	OpTrend       Operation = "TREND"
	OpCleanData   Operation = "CLEAN_DATA"
)

// Cleaning operations understood by CLEAN_DATA
const (
	CleanDropDuplicates  = "drop_duplicates"
	CleanFillNumeric     = "fill_numeric_median"
	CleanFillCategorical = "fill_categorical_mode"
)

// Params carries the optional inputs of a step
type Params struct {
	GroupBy        string   `json:"group_by,omitempty"`
	TargetColumn   string   `json:"target_column,omitempty"`
	Agg            string   `json:"agg,omitempty"` // mean, sum, count
	DatetimeColumn string   `json:"datetime_column,omitempty"`
	Operations     []string `json:"operations,omitempty"`
}

// Step is one unit of a plan
type Step struct {
	ID          string    `json:"step_id"`
	Description string    `json:"description"`
	Operation   Operation `json:"operation"`
	Params      Params    `json:"params"`
}

// Plan is an ordered list of steps for an intent that needs no target
type Plan struct {
	Category     intent.Category `json:"category"`
	Steps        []Step          `json:"steps"`
	TableVersion uint64          `json:"table_version"`
}

// Status of an executed step
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Point is one labelled value of a step's output series
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// StepResult records the outcome of one step
type StepResult struct {
	StepID    string             `json:"step_id"`
	Operation Operation          `json:"operation"`
	Status    Status             `json:"status"`
	Summary   string             `json:"summary"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Series    []Point            `json:"series,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Failed reports whether the step failed
func (r StepResult) Failed() bool { return r.Status == StatusFailed }

// Execution is the outcome of running a plan. Table and Profile are the working
// table after all steps, re-profiled when a step changed it.
type Execution struct {
	Results []StepResult     `json:"results"`
	Table   *table.Table     `json:"table"`
	Profile *profile.Profile `json:"profile"`
}

// Failures counts failed steps
func (e *Execution) Failures() int {
	n := 0
	for _, r := range e.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}
