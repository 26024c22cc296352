package tabular

import (
	"fmt"
	"time"

	"gostudio/domain/core"
	"gostudio/domain/table"
)

// InferenceConfig holds the share of non-null cells that must parse before a
// column is typed as bool, float or time
type InferenceConfig struct {
	BoolThreshold   float64
	NumberThreshold float64
	TimeThreshold   float64
}

// DefaultInference applies the 80% rule to every kind
func DefaultInference() InferenceConfig {
	return InferenceConfig{
		BoolThreshold:   0.8,
		NumberThreshold: 0.8,
		TimeThreshold:   0.8,
	}
}

// Infer types a column of raw cells. Kinds are tried as bool, float, time, then
// string. Cells that fail to parse in a typed column become nulls and are reported
// in the returned warning.
func (c InferenceConfig) Infer(name string, raw []string) (*table.Column, *core.ProfilingWarning) {
	present := 0
	var bools, numbers, times int
	for _, s := range raw {
		if table.IsNullToken(s) {
			continue
		}
		present++
		if _, ok := table.ParseBool(s); ok {
			bools++
		}
		if _, ok := table.ParseNumber(s); ok {
			numbers++
		}
		if _, ok := table.ParseTime(s); ok {
			times++
		}
	}
	if present == 0 {
		return table.StringColumn(name, make([]string, len(raw))), nil
	}

	share := func(n int) float64 { return float64(n) / float64(present) }
	switch {
	case share(bools) >= c.BoolThreshold:
		return coerceBool(name, raw)
	case share(numbers) >= c.NumberThreshold:
		return coerceNumber(name, raw)
	case share(times) >= c.TimeThreshold:
		return coerceTime(name, raw)
	}

	values := make([]string, len(raw))
	for i, s := range raw {
		if !table.IsNullToken(s) {
			values[i] = s
		}
	}
	return table.StringColumn(name, values), nil
}

func coerceBool(name string, raw []string) (*table.Column, *core.ProfilingWarning) {
	values := make([]bool, len(raw))
	valid := make([]bool, len(raw))
	var failed failures
	for i, s := range raw {
		if table.IsNullToken(s) {
			continue
		}
		v, ok := table.ParseBool(s)
		if !ok {
			failed.add(s)
			continue
		}
		values[i], valid[i] = v, true
	}
	return table.BoolColumn(name, values, valid), failed.warning(name, table.KindBool)
}

func coerceNumber(name string, raw []string) (*table.Column, *core.ProfilingWarning) {
	values := make([]float64, len(raw))
	col := table.FloatColumn(name, values)
	var failed failures
	for i, s := range raw {
		col.Valid[i] = false
		if table.IsNullToken(s) {
			continue
		}
		v, ok := table.ParseNumber(s)
		if !ok {
			failed.add(s)
			continue
		}
		col.Floats[i], col.Valid[i] = v, true
	}
	return col, failed.warning(name, table.KindFloat)
}

func coerceTime(name string, raw []string) (*table.Column, *core.ProfilingWarning) {
	values := make([]time.Time, len(raw))
	var failed failures
	for i, s := range raw {
		if table.IsNullToken(s) {
			continue
		}
		v, ok := table.ParseTime(s)
		if !ok {
			failed.add(s)
			continue
		}
		values[i] = v
	}
	return table.TimeColumn(name, values), failed.warning(name, table.KindTime)
}

// failures counts cells that could not be coerced and keeps the first one
type failures struct {
	count int
	first string
}

func (f *failures) add(s string) {
	if f.count == 0 {
		f.first = s
	}
	f.count++
}

func (f failures) warning(column string, kind table.Kind) *core.ProfilingWarning {
	if f.count == 0 {
		return nil
	}
	return &core.ProfilingWarning{
		Column:  column,
		Message: fmt.Sprintf("%d values could not be read as %s and were treated as missing (e.g. %q)", f.count, kind, f.first),
	}
}
