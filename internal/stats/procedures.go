package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// insufficient is returned by procedures when the data cannot support the test.
type insufficient struct {
	reason string
}

func (e insufficient) Error() string { return e.reason }

func insufficientf(format string, args ...any) error {
	return insufficient{reason: fmt.Sprintf(format, args...)}
}

// ============================================================================
// CORRELATION
// ============================================================================

// Pearson computes the product-moment correlation and its p-value
func (e *Engine) Pearson(x, y []float64) (float64, float64, error) {
	if err := requireVariance(x, "predictor"); err != nil {
		return 0, 0, err
	}
	if err := requireVariance(y, "target"); err != nil {
		return 0, 0, err
	}
	r := clampUnit(stat.Correlation(x, y, nil))
	return r, e.dist.CorrelationPValue(r, len(x)), nil
}

// Spearman computes the rank correlation, averaging ranks over ties
func (e *Engine) Spearman(x, y []float64) (float64, float64, error) {
	return e.Pearson(computeRanks(x), computeRanks(y))
}

// computeRanks assigns 1-based ranks, giving tied values their average rank
func computeRanks(data []float64) []float64 {
	n := len(data)
	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, val := range data {
		pairs[i] = pair{value: val, index: i}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].value < pairs[j].value
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avgRank := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

// ============================================================================
// GROUP COMPARISON
// ============================================================================

type groupStats struct {
	label    string
	n        int
	mean     float64
	variance float64
}

// groupValues splits values by label and returns groups sorted by label
func groupValues(labels []string, values []float64) []groupStats {
	byLabel := make(map[string][]float64)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], values[i])
	}
	out := make([]groupStats, 0, len(byLabel))
	for label, vals := range byLabel {
		g := groupStats{label: label, n: len(vals)}
		if len(vals) > 1 {
			g.mean, g.variance = stat.MeanVariance(vals, nil)
		} else {
			g.mean = vals[0]
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

// WelchT compares the means of exactly two groups without assuming equal variances.
// It returns t, p and Cohen's d.
func (e *Engine) WelchT(labels []string, values []float64) (float64, float64, float64, map[string]float64, error) {
	groups := groupValues(labels, values)
	if len(groups) != 2 {
		return 0, 0, 0, nil, insufficientf("welch t-test needs 2 groups, found %d", len(groups))
	}
	a, b := groups[0], groups[1]
	if a.n < 2 || b.n < 2 {
		return 0, 0, 0, nil, insufficientf("each group needs at least 2 rows (%s=%d, %s=%d)", a.label, a.n, b.label, b.n)
	}
	if a.variance == 0 && b.variance == 0 {
		return 0, 0, 0, nil, insufficientf("zero within-group variance")
	}
	se2a := a.variance / float64(a.n)
	se2b := b.variance / float64(b.n)
	t := (a.mean - b.mean) / math.Sqrt(se2a+se2b)
	df := (se2a + se2b) * (se2a + se2b) / (se2a*se2a/float64(a.n-1) + se2b*se2b/float64(b.n-1))
	p := e.dist.TTestPValue(t, df)
	d := e.dist.EffectSizeCohenD(a.mean, b.mean, a.variance, b.variance, a.n, b.n)
	return t, p, math.Abs(d), means(groups), nil
}

// OneWayANOVA tests whether group means differ. It returns F, p and eta squared.
func (e *Engine) OneWayANOVA(labels []string, values []float64) (float64, float64, float64, map[string]float64, error) {
	groups := groupValues(labels, values)
	k := len(groups)
	n := len(values)
	if k < 2 {
		return 0, 0, 0, nil, insufficientf("fewer than 2 groups")
	}
	if n-k <= 0 {
		return 0, 0, 0, nil, insufficientf("%d groups leave no residual degrees of freedom for %d rows", k, n)
	}
	grand := stat.Mean(values, nil)
	var ssb, ssw float64
	for _, g := range groups {
		ssb += float64(g.n) * (g.mean - grand) * (g.mean - grand)
		if g.n > 1 {
			ssw += g.variance * float64(g.n-1)
		}
	}
	if ssw == 0 {
		return 0, 0, 0, nil, insufficientf("zero within-group variance")
	}
	df1, df2 := float64(k-1), float64(n-k)
	f := (ssb / df1) / (ssw / df2)
	eta2 := ssb / (ssb + ssw)
	return f, e.dist.FTestPValue(f, df1, df2), eta2, means(groups), nil
}

func means(groups []groupStats) map[string]float64 {
	out := make(map[string]float64, len(groups))
	for _, g := range groups {
		out[g.label] = g.mean
	}
	return out
}

// ============================================================================
// CLASSIFICATION SIGNAL
// ============================================================================

// ChiSquare tests independence of two categorical variables. It returns the
// statistic, p-value and Cramér's V.
func (e *Engine) ChiSquare(rows, cols []string) (float64, float64, float64, error) {
	rowIdx := indexLevels(rows)
	colIdx := indexLevels(cols)
	r, c := len(rowIdx), len(colIdx)
	if r < 2 || c < 2 {
		return 0, 0, 0, insufficientf("contingency table is %dx%d", r, c)
	}
	observed := make([][]float64, r)
	for i := range observed {
		observed[i] = make([]float64, c)
	}
	for i := range rows {
		observed[rowIdx[rows[i]]][colIdx[cols[i]]]++
	}
	rowTotals := make([]float64, r)
	colTotals := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rowTotals[i] += observed[i][j]
			colTotals[j] += observed[i][j]
		}
	}
	n := float64(len(rows))
	chi2 := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			expected := rowTotals[i] * colTotals[j] / n
			diff := observed[i][j] - expected
			chi2 += diff * diff / expected
		}
	}
	df := (r - 1) * (c - 1)
	minDim := math.Min(float64(r), float64(c))
	v := math.Sqrt(chi2 / (n * (minDim - 1)))
	return chi2, e.dist.ChiSquarePValue(chi2, df), clampUnit(v), nil
}

// PointBiserial correlates a numeric predictor with a two-class target
func (e *Engine) PointBiserial(x []float64, classes []string) (float64, float64, error) {
	levels := indexLevels(classes)
	if len(levels) != 2 {
		return 0, 0, insufficientf("point-biserial needs 2 classes, found %d", len(levels))
	}
	indicator := make([]float64, len(classes))
	for i, c := range classes {
		indicator[i] = float64(levels[c])
	}
	return e.Pearson(x, indicator)
}

// indexLevels maps each distinct label to its position in sorted order
func indexLevels(labels []string) map[string]int {
	seen := make(map[string]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	sorted := make([]string, 0, len(seen))
	for l := range seen {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)
	out := make(map[string]int, len(sorted))
	for i, l := range sorted {
		out[l] = i
	}
	return out
}

func requireVariance(x []float64, name string) error {
	if len(x) < 2 {
		return insufficientf("%s has fewer than 2 values", name)
	}
	if stat.Variance(x, nil) == 0 {
		return insufficientf("%s has zero variance", name)
	}
	return nil
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
