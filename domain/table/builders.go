package table

import (
	"math"
	"time"
)

// FloatColumn builds a numeric column; NaN marks a missing value.
func FloatColumn(name string, values []float64) *Column {
	c := &Column{Name: name, Kind: KindFloat, Floats: make([]float64, len(values)), Valid: make([]bool, len(values))}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		c.Floats[i] = v
		c.Valid[i] = true
	}
	return c
}

// StringColumn builds a text column; the empty string marks a missing value.
func StringColumn(name string, values []string) *Column {
	c := &Column{Name: name, Kind: KindString, Strings: make([]string, len(values)), Valid: make([]bool, len(values))}
	for i, v := range values {
		if v == "" {
			continue
		}
		c.Strings[i] = v
		c.Valid[i] = true
	}
	return c
}

// BoolColumn builds a boolean column; valid may be nil when every cell is present.
func BoolColumn(name string, values []bool, valid []bool) *Column {
	c := &Column{Name: name, Kind: KindBool, Bools: append([]bool(nil), values...), Valid: make([]bool, len(values))}
	for i := range values {
		c.Valid[i] = valid == nil || valid[i]
		if !c.Valid[i] {
			c.Bools[i] = false
		}
	}
	return c
}

// TimeColumn builds a datetime column; the zero time marks a missing value.
func TimeColumn(name string, values []time.Time) *Column {
	c := &Column{Name: name, Kind: KindTime, Times: make([]time.Time, len(values)), Valid: make([]bool, len(values))}
	for i, v := range values {
		if v.IsZero() {
			continue
		}
		c.Times[i] = v.UTC()
		c.Valid[i] = true
	}
	return c
}
