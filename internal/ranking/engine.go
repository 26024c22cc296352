package ranking

import (
	"sort"

	"gostudio/domain/core"
	"gostudio/domain/hypothesis"
	"gostudio/domain/ranking"
	"gostudio/domain/stats"
	"gostudio/internal"
)

// KindSkippedPairing marks a predictor the generator deliberately did not test
const KindSkippedPairing = "skipped_pairing"

// Engine turns a set of test results into an ordered driver list
type Engine struct {
	weights ranking.Weights
	logger  *internal.Logger
}

// NewEngine creates a ranking engine after validating the weights
func NewEngine(weights ranking.Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: weights, logger: internal.DefaultLogger}, nil
}

// Weights returns the configured weights
func (e *Engine) Weights() ranking.Weights { return e.weights }

// Rank orders results by composite score. It is pure: the same input always yields
// the same order, and the input slice is not modified.
func (e *Engine) Rank(set *hypothesis.Set, results stats.Results) *ranking.Ranking {
	out := &ranking.Ranking{
		Weights: e.weights,
		Drivers: make([]ranking.Driver, 0, len(results)),
		Flags:   []ranking.QualityFlag{},
	}
	if set != nil {
		out.Target = set.Target
		out.TargetType = set.TargetType
		for _, s := range set.Skipped {
			out.Flags = append(out.Flags, ranking.QualityFlag{Column: s.Predictor, Kind: KindSkippedPairing, Reason: s.Reason})
		}
	}

	maxImportance := 0.0
	for _, r := range results {
		if ev := r.Evidence(); ev.Importance != nil && *ev.Importance > maxImportance {
			maxImportance = *ev.Importance
		}
	}

	for _, r := range results {
		ev := r.Evidence()
		d := ranking.Driver{
			Predictor:         r.Pair().Predictor,
			SignificanceLabel: stats.SignificanceLabel(ev.PValue),
			Result:            stats.Tagged{Result: r},
		}
		if fr, ok := r.(*stats.FailedResult); ok {
			out.Flags = append(out.Flags, ranking.QualityFlag{Column: fr.Predictor, Kind: fr.ErrorKind, Reason: fr.Reason})
		}
		if ev.PValue != nil {
			d.Significance = 1 - *ev.PValue
			d.Effect = ev.NormalizedEffect
			if ev.Importance != nil && maxImportance > 0 {
				d.Importance = *ev.Importance / maxImportance
			}
		}
		d.Composite = e.weights.Significance*d.Significance +
			e.weights.Effect*d.Effect +
			e.weights.Importance*d.Importance
		out.Drivers = append(out.Drivers, d)
	}

	sort.SliceStable(out.Drivers, func(i, j int) bool {
		a, b := out.Drivers[i], out.Drivers[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.Tested() != b.Tested() {
			return a.Tested()
		}
		return a.Predictor < b.Predictor
	})
	for i := range out.Drivers {
		out.Drivers[i].Rank = i + 1
	}

	if len(out.Drivers) > 0 {
		top := out.Drivers[0]
		e.logger.Info("[Ranking] ranked %d drivers for %s, top=%s composite=%.3f (%s)",
			len(out.Drivers), out.Target, top.Predictor, top.Composite, top.SignificanceLabel)
	}
	return out
}

// Failures counts drivers whose test did not run, by error kind
func Failures(r *ranking.Ranking) map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for _, d := range r.Drivers {
		if fr, ok := d.Result.Result.(*stats.FailedResult); ok {
			kind := fr.ErrorKind
			if kind == "" {
				kind = core.KindInternal
			}
			out[kind]++
		}
	}
	return out
}
