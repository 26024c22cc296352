package ranking

import (
	"fmt"
	"math"

	"gostudio/domain/intent"
	"gostudio/domain/stats"
)

// Weights balance the three parts of the composite score.
// INVARIANT: every weight is non-negative and they sum to 1.
type Weights struct {
	Significance float64 `json:"significance"`
	Effect       float64 `json:"effect"`
	Importance   float64 `json:"importance"`
}

// DefaultWeights lets significance dominate the composite score
func DefaultWeights() Weights {
	return Weights{Significance: 0.5, Effect: 0.3, Importance: 0.2}
}

// Validate checks the weights form a convex combination
func (w Weights) Validate() error {
	if w.Significance < 0 || w.Effect < 0 || w.Importance < 0 {
		return fmt.Errorf("ranking weights must be non-negative: %+v", w)
	}
	if sum := w.Significance + w.Effect + w.Importance; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("ranking weights must sum to 1, got %.4f", sum)
	}
	return nil
}

// Driver is one ranked predictor
type Driver struct {
	Rank              int          `json:"rank"` // 1-based
	Predictor         string       `json:"predictor"`
	Composite         float64      `json:"composite"`
	Significance      float64      `json:"significance"`       // 1 - p, 0 when untested
	Effect            float64      `json:"effect"`             // normalized effect in [0, 1]
	Importance        float64      `json:"importance"`         // importance relative to the strongest predictor
	SignificanceLabel string       `json:"significance_label"` // "very strong" ... "not tested"
	Result            stats.Tagged `json:"result"`
}

// Tested reports whether the driver's test produced a p-value
func (d Driver) Tested() bool {
	return d.Result.Result != nil && d.Result.Evidence().PValue != nil
}

// QualityFlag is a data-quality note carried next to the ranking
type QualityFlag struct {
	Column string `json:"column"`
	Kind   string `json:"kind"` // skipped_pairing, insufficient_data, test_execution_timeout, internal
	Reason string `json:"reason"`
}

// Ranking is the ordered driver list for one target
type Ranking struct {
	Target     string            `json:"target"`
	TargetType intent.TargetType `json:"target_type"`
	Drivers    []Driver          `json:"drivers"`
	Weights    Weights           `json:"weights"`
	Flags      []QualityFlag     `json:"flags"`
}

// Tested reports whether at least one driver produced a test result
func (r *Ranking) Tested() bool {
	return len(r.Top(1)) > 0
}

// Top returns at most n drivers that produced a test result
func (r *Ranking) Top(n int) []Driver {
	if r == nil {
		return nil
	}
	out := make([]Driver, 0, n)
	for _, d := range r.Drivers {
		if len(out) == n {
			break
		}
		if d.Tested() {
			out = append(out, d)
		}
	}
	return out
}

// Driver looks up a driver by predictor name
func (r *Ranking) Driver(predictor string) (Driver, bool) {
	if r == nil {
		return Driver{}, false
	}
	for _, d := range r.Drivers {
		if d.Predictor == predictor {
			return d, true
		}
	}
	return Driver{}, false
}
