package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gostudio/domain/core"
	"gostudio/domain/table"
	"gostudio/internal"
)

const (
	// MaxUploadBytes bounds a single upload
	MaxUploadBytes = 100 << 20

	// raggedTolerance is the share of rows whose width may differ from the header
	raggedTolerance = 0.05
)

// Loader reads CSV, TSV and XLSX uploads into tables. It implements ports.TableLoader.
type Loader struct {
	Inference InferenceConfig
	logger    *internal.Logger
}

// NewLoader creates a loader with the default inference rules
func NewLoader() *Loader {
	return &Loader{Inference: DefaultInference(), logger: internal.DefaultLogger}
}

// Load dispatches on the extension of name. Every failure to produce a table is a
// CorruptedUploadError.
func (l *Loader) Load(ctx context.Context, name string, r io.Reader) (*table.Table, error) {
	start := time.Now()
	ext := strings.ToLower(filepath.Ext(name))

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, corrupted(name, fmt.Sprintf("failed to read upload: %v", err))
	}
	if len(data) > MaxUploadBytes {
		return nil, corrupted(name, "file size exceeds 100MB limit")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, corrupted(name, "file is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows [][]string
	switch ext {
	case ".csv":
		rows, err = readDelimited(data, ',')
	case ".tsv":
		rows, err = readDelimited(data, '\t')
	case ".xlsx":
		rows, err = readWorkbook(data)
	default:
		return nil, corrupted(name, fmt.Sprintf("unsupported file extension %q", ext))
	}
	if err != nil {
		return nil, corrupted(name, err.Error())
	}
	l.logger.Debug("[Tabular] %s read in %.2fms (%d raw rows)", name, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	t, err := l.build(name, rows)
	if err != nil {
		return nil, err
	}
	l.logger.Info("[Tabular] Loaded %s: %d rows, %d columns, %d coercion warnings",
		name, t.NumRows(), t.NumCols(), len(t.Warnings))
	return t, nil
}

func readDelimited(data []byte, comma rune) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited text: %w", err)
	}
	return rows, nil
}

// readWorkbook reads the first sheet of an XLSX workbook
func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// build validates the raw grid and infers one typed column per header
func (l *Loader) build(name string, rows [][]string) (*table.Table, error) {
	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, corrupted(name, "no header row")
	}
	headers, err := normalizeHeaders(rows[0])
	if err != nil {
		return nil, corrupted(name, err.Error())
	}

	var body [][]string
	ragged := 0
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) != len(headers) {
			if len(row) < len(headers) || !isBlank(row[len(headers):]) {
				ragged++
			}
			row = fit(row, len(headers))
		}
		body = append(body, row)
	}
	if len(body) == 0 {
		return nil, corrupted(name, "no data rows")
	}
	if float64(ragged) > raggedTolerance*float64(len(body)) {
		return nil, corrupted(name, fmt.Sprintf("%d of %d rows do not match the %d header columns", ragged, len(body), len(headers)))
	}

	columns := make([]*table.Column, len(headers))
	var warnings []core.ProfilingWarning
	for j, header := range headers {
		raw := make([]string, len(body))
		for i, row := range body {
			raw[i] = strings.TrimSpace(row[j])
		}
		col, warning := l.Inference.Infer(header, raw)
		columns[j] = col
		if warning != nil {
			warnings = append(warnings, *warning)
		}
	}
	if ragged > 0 {
		warnings = append(warnings, core.ProfilingWarning{
			Message: fmt.Sprintf("%d rows had a different number of cells than the header and were padded or truncated", ragged),
		})
	}

	t, err := table.New(name, columns...)
	if err != nil {
		return nil, corrupted(name, err.Error())
	}
	t.Warnings = warnings
	return t, nil
}

// normalizeHeaders trims and lowercases names; blank and duplicate names are rejected
func normalizeHeaders(row []string) ([]string, error) {
	for len(row) > 0 && strings.TrimSpace(row[len(row)-1]) == "" {
		row = row[:len(row)-1]
	}
	headers := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, h := range row {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return nil, fmt.Errorf("column %d has no header", i+1)
		}
		if prev, dup := seen[h]; dup {
			return nil, fmt.Errorf("duplicate header %q in columns %d and %d", h, prev+1, i+1)
		}
		seen[h] = i
		headers[i] = h
	}
	return headers, nil
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func corrupted(source, reason string) error {
	return &core.CorruptedUploadError{Source: source, Reason: reason}
}
