package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gostudio/domain/core"
)

// Kind is the physical datatype of a column.
type Kind string

const (
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
)

// Column is a typed vector with a validity mask. Only the slice matching Kind is populated.
type Column struct {
	Name    string      `json:"name"`
	Kind    Kind        `json:"kind"`
	Floats  []float64   `json:"floats"`
	Strings []string    `json:"strings"`
	Bools   []bool      `json:"bools"`
	Times   []time.Time `json:"times"`
	Valid   []bool      `json:"valid"`
}

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.Valid) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return !c.Valid[i] }

// NullCount counts missing cells.
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// IsNumeric reports whether the column stores numbers.
func (c *Column) IsNumeric() bool { return c.Kind == KindFloat }

// StringAt returns the canonical text form of a cell, used for grouping and
// duplicate detection. Nulls render as the empty string.
func (c *Column) StringAt(i int) string {
	if !c.Valid[i] {
		return ""
	}
	switch c.Kind {
	case KindFloat:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(c.Bools[i])
	case KindTime:
		return c.Times[i].Format(time.RFC3339Nano)
	default:
		return c.Strings[i]
	}
}

// FloatAt returns a numeric view of a cell: floats as-is, bools as 0/1 and times as
// unix seconds. Strings are parsed when possible.
func (c *Column) FloatAt(i int) (float64, bool) {
	if !c.Valid[i] {
		return 0, false
	}
	switch c.Kind {
	case KindFloat:
		return c.Floats[i], true
	case KindBool:
		if c.Bools[i] {
			return 1, true
		}
		return 0, true
	case KindTime:
		return float64(c.Times[i].Unix()), true
	default:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Strings[i]), 64)
		return v, err == nil
	}
}

// Distinct returns the sorted distinct non-null canonical values.
func (c *Column) Distinct() []string {
	seen := make(map[string]struct{})
	for i := range c.Valid {
		if c.Valid[i] {
			seen[c.StringAt(i)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone deep-copies the column.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Valid: append([]bool(nil), c.Valid...)}
	switch c.Kind {
	case KindFloat:
		out.Floats = append([]float64(nil), c.Floats...)
	case KindBool:
		out.Bools = append([]bool(nil), c.Bools...)
	case KindTime:
		out.Times = append([]time.Time(nil), c.Times...)
	default:
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// take builds a column with only the given rows.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Valid: make([]bool, len(rows))}
	switch c.Kind {
	case KindFloat:
		out.Floats = make([]float64, len(rows))
	case KindBool:
		out.Bools = make([]bool, len(rows))
	case KindTime:
		out.Times = make([]time.Time, len(rows))
	default:
		out.Strings = make([]string, len(rows))
	}
	for j, i := range rows {
		out.Valid[j] = c.Valid[i]
		switch c.Kind {
		case KindFloat:
			out.Floats[j] = c.Floats[i]
		case KindBool:
			out.Bools[j] = c.Bools[i]
		case KindTime:
			out.Times[j] = c.Times[i]
		default:
			out.Strings[j] = c.Strings[i]
		}
	}
	return out
}

func (c *Column) validate() error {
	n := len(c.Valid)
	var got int
	switch c.Kind {
	case KindFloat:
		got = len(c.Floats)
	case KindBool:
		got = len(c.Bools)
	case KindTime:
		got = len(c.Times)
	case KindString:
		got = len(c.Strings)
	default:
		return fmt.Errorf("column %s has unknown kind %q", c.Name, c.Kind)
	}
	if got != n {
		return fmt.Errorf("column %s has %d values but %d validity flags", c.Name, got, n)
	}
	return nil
}

// Table is an owned, versioned dataset. Tables are treated as immutable once built:
// every change returns a new table with a higher Version, sharing untouched columns.
type Table struct {
	Version  uint64                  `json:"version"`
	Source   string                  `json:"source"`
	Columns  []*Column               `json:"columns"`
	Warnings []core.ProfilingWarning `json:"warnings,omitempty"`
}

// New validates the columns and builds a version-1 table.
func New(source string, columns ...*Column) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	rows := -1
	for _, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("column names cannot be empty")
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if err := c.validate(); err != nil {
			return nil, err
		}
		if rows >= 0 && c.Len() != rows {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", c.Name, c.Len(), rows)
		}
		rows = c.Len()
	}
	return &Table{Version: 1, Source: source, Columns: columns}, nil
}

// MustNew is New for fixtures; it panics on invalid input.
func MustNew(source string, columns ...*Column) *Table {
	t, err := New(source, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.Columns) }

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasColumn reports whether name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// NullCount totals missing cells across the table.
func (t *Table) NullCount() int {
	n := 0
	for _, c := range t.Columns {
		n += c.NullCount()
	}
	return n
}

// RowKey renders a full row for duplicate detection.
func (t *Table) RowKey(i int) string {
	var b strings.Builder
	for j, c := range t.Columns {
		if j > 0 {
			b.WriteByte(0x1f)
		}
		if c.IsNull(i) {
			b.WriteString("\x00")
			continue
		}
		b.WriteString(c.StringAt(i))
	}
	return b.String()
}

// next starts a successor table that shares columns with t.
func (t *Table) next() *Table {
	return &Table{
		Version:  t.Version + 1,
		Source:   t.Source,
		Columns:  append([]*Column(nil), t.Columns...),
		Warnings: t.Warnings,
	}
}

// WithColumn returns a successor with col replacing the same-named column, or
// appended when the name is new.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if err := col.validate(); err != nil {
		return nil, err
	}
	if t.NumCols() > 0 && col.Len() != t.NumRows() {
		return nil, fmt.Errorf("column %s has %d rows, table has %d", col.Name, col.Len(), t.NumRows())
	}
	out := t.next()
	for i, c := range out.Columns {
		if c.Name == col.Name {
			out.Columns[i] = col
			return out, nil
		}
	}
	out.Columns = append(out.Columns, col)
	return out, nil
}

// WithColumns applies several replacements in one version step.
func (t *Table) WithColumns(cols ...*Column) (*Table, error) {
	out := t.next()
	for _, col := range cols {
		if err := col.validate(); err != nil {
			return nil, err
		}
		if out.NumCols() > 0 && col.Len() != out.NumRows() {
			return nil, fmt.Errorf("column %s has %d rows, table has %d", col.Name, col.Len(), out.NumRows())
		}
		replaced := false
		for i, c := range out.Columns {
			if c.Name == col.Name {
				out.Columns[i] = col
				replaced = true
				break
			}
		}
		if !replaced {
			out.Columns = append(out.Columns, col)
		}
	}
	return out, nil
}

// KeepRows returns a successor containing only rows where keep returns true.
func (t *Table) KeepRows(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out := t.next()
	for i, c := range out.Columns {
		out.Columns[i] = c.take(rows)
	}
	return out
}
