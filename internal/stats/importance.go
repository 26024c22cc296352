package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gostudio/domain/hypothesis"
	"gostudio/domain/profile"
	"gostudio/domain/table"
)

// featureBlock is the design-matrix columns contributed by one predictor
type featureBlock struct {
	predictor string
	columns   [][]float64
}

// Importance fits one ridge one-vs-rest linear model over every classification
// predictor and scores each predictor by how much the penalized loss grows when
// its block is dropped and the model refit. Scores are returned as shares (sum 1).
// Missing predictor cells are mean-imputed; rows with a missing target are skipped.
func (e *Engine) Importance(t *table.Table, hyps []hypothesis.Hypothesis) (map[string]float64, error) {
	var preds []hypothesis.Hypothesis
	for _, h := range hyps {
		if h.Kind == hypothesis.KindClassificationSignal {
			preds = append(preds, h)
		}
	}
	if len(preds) == 0 {
		return map[string]float64{}, nil
	}
	target, ok := t.Column(preds[0].Target)
	if !ok {
		return nil, fmt.Errorf("target %s not found", preds[0].Target)
	}

	rows := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		if !target.IsNull(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) < 2 {
		return nil, insufficientf("target has fewer than 2 values")
	}

	blocks := make([]featureBlock, 0, len(preds))
	width := 0
	for _, h := range preds {
		col, ok := t.Column(h.Predictor)
		if !ok {
			return nil, fmt.Errorf("predictor %s not found", h.Predictor)
		}
		b := buildBlock(col, h.PredictorRole, rows)
		blocks = append(blocks, b)
		width += len(b.columns)
	}
	if width == 0 {
		return uniformShares(preds), nil
	}

	classes := indexLevels(classLabels(target, rows))
	labels := make([]string, 0, len(classes))
	for c := range classes {
		labels = append(labels, c)
	}
	sort.Strings(labels)
	if len(labels) == 2 {
		labels = labels[1:]
	}
	responses := make([][]float64, 0, len(labels))
	for _, class := range labels {
		y := make([]float64, len(rows))
		for i, r := range rows {
			if target.StringAt(r) == class {
				y[i] = 1
			}
		}
		center(y)
		responses = append(responses, y)
	}

	penalty := e.cfg.RidgeLambda * float64(len(rows))
	full, err := ridgeLoss(blocks, -1, responses, penalty)
	if err != nil {
		return nil, err
	}

	shares := make(map[string]float64, len(blocks))
	total := 0.0
	for i, b := range blocks {
		if len(b.columns) == 0 {
			shares[b.predictor] = 0
			continue
		}
		reduced, err := ridgeLoss(blocks, i, responses, penalty)
		if err != nil {
			return nil, err
		}
		shares[b.predictor] = math.Max(reduced-full, 0)
		total += shares[b.predictor]
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return uniformShares(preds), nil
	}
	for k := range shares {
		shares[k] /= total
	}
	return shares, nil
}

// ridgeLoss fits every response on the blocks except skip and returns the summed
// penalized loss at the optimum, y'y - y'X(X'X + penalty*I)^-1 X'y.
func ridgeLoss(blocks []featureBlock, skip int, responses [][]float64, penalty float64) (float64, error) {
	var cols [][]float64
	for i, b := range blocks {
		if i != skip {
			cols = append(cols, b.columns...)
		}
	}
	loss := 0.0
	if len(cols) == 0 {
		for _, y := range responses {
			loss += floats.Dot(y, y)
		}
		return loss, nil
	}

	n := len(responses[0])
	x := mat.NewDense(n, len(cols), nil)
	for j, c := range cols {
		x.SetCol(j, c)
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for d := range cols {
		xtx.Set(d, d, xtx.At(d, d)+penalty)
	}

	for _, y := range responses {
		yv := mat.NewVecDense(n, y)
		var xty mat.VecDense
		xty.MulVec(x.T(), yv)
		var beta mat.VecDense
		if err := beta.SolveVec(&xtx, &xty); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return 0, fmt.Errorf("fitting importance model: %w", err)
			}
		}
		loss += floats.Dot(y, y) - mat.Dot(&xty, &beta)
	}
	return loss, nil
}

// buildBlock standardizes a numeric predictor or one-hot encodes a categorical one
func buildBlock(col *table.Column, role profile.Role, rows []int) featureBlock {
	b := featureBlock{predictor: col.Name}
	switch role {
	case profile.RoleCategorical, profile.RoleBoolean:
		labels := make([]string, 0, len(rows))
		for _, r := range rows {
			if !col.IsNull(r) {
				labels = append(labels, col.StringAt(r))
			}
		}
		levels := indexLevels(labels)
		if len(levels) < 2 {
			return b
		}
		onehot := make([][]float64, len(levels))
		for i := range onehot {
			onehot[i] = make([]float64, len(rows))
		}
		for i, r := range rows {
			if col.IsNull(r) {
				continue
			}
			onehot[levels[col.StringAt(r)]][i] = 1
		}
		// the first level is the reference
		for _, c := range onehot[1:] {
			if standardize(c) {
				b.columns = append(b.columns, c)
			}
		}
	default:
		values := make([]float64, len(rows))
		present := make([]float64, 0, len(rows))
		for _, r := range rows {
			if v, ok := numericAt(col, r); ok {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return b
		}
		fill := stat.Mean(present, nil)
		for i, r := range rows {
			if v, ok := numericAt(col, r); ok {
				values[i] = v
			} else {
				values[i] = fill
			}
		}
		if standardize(values) {
			b.columns = append(b.columns, values)
		}
	}
	return b
}

// standardize rescales v in place to zero mean and unit variance. It reports
// false when v is constant.
func standardize(v []float64) bool {
	mean, std := stat.MeanStdDev(v, nil)
	if std == 0 || math.IsNaN(std) {
		return false
	}
	for i := range v {
		v[i] = (v[i] - mean) / std
	}
	return true
}

func center(v []float64) {
	mean := stat.Mean(v, nil)
	for i := range v {
		v[i] -= mean
	}
}

func classLabels(target *table.Column, rows []int) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = target.StringAt(r)
	}
	return out
}

func uniformShares(preds []hypothesis.Hypothesis) map[string]float64 {
	out := make(map[string]float64, len(preds))
	for _, h := range preds {
		out[h.Predictor] = 1 / float64(len(preds))
	}
	return out
}
