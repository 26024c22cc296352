package profiling

import (
	"math"
	"strings"
	"unicode"

	"github.com/montanaflynn/stats"

	"gostudio/domain/profile"
	"gostudio/domain/table"
)

var identifierTokens = map[string]struct{}{
	"id":   {},
	"uuid": {},
	"guid": {},
	"key":  {},
	"code": {},
}

// hasIdentifierHint reports whether any token of the column name names an identifier.
// Names are split on separators and camelCase boundaries.
func hasIdentifierHint(name string) bool {
	for _, token := range NameTokens(name) {
		if _, ok := identifierTokens[token]; ok {
			return true
		}
	}
	return false
}

// NameTokens lowercases and splits a column name into words.
func NameTokens(name string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// NonNullFloats extracts the valid numeric values of a column.
func NonNullFloats(col *table.Column) []float64 {
	out := make([]float64, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		if v, ok := col.FloatAt(i); ok {
			out = append(out, v)
		}
	}
	return out
}

func numericSummary(col *table.Column) (*profile.NumericSummary, error) {
	data := NonNullFloats(col)

	mean, err := stats.Mean(data)
	if err != nil {
		return nil, err
	}
	min, err := stats.Min(data)
	if err != nil {
		return nil, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return nil, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return nil, err
	}
	std := 0.0
	if len(data) > 1 {
		std, err = stats.StandardDeviationSample(data)
		if err != nil {
			return nil, err
		}
	}
	if math.IsNaN(std) || math.IsInf(std, 0) {
		std = 0
	}

	return &profile.NumericSummary{
		Mean:   mean,
		Std:    std,
		Min:    min,
		Max:    max,
		Median: median,
	}, nil
}
