package stats

import (
	"math"

	"gostudio/domain/hypothesis"
)

// ============================================================================
// TEST IDENTIFIERS
// ============================================================================

// TestName identifies the statistical procedure that produced a result
type TestName string

const (
	TestPearson       TestName = "pearson"
	TestSpearman      TestName = "spearman"
	TestWelchT        TestName = "welch_t"
	TestANOVA         TestName = "anova"
	TestChiSquare     TestName = "chi_square"
	TestPointBiserial TestName = "point_biserial"
	TestNone          TestName = "none"
)

// Variant tags the concrete result type for serialization
type Variant string

const (
	VariantCorrelation          Variant = "correlation"
	VariantGroupDifference      Variant = "group_difference"
	VariantClassificationSignal Variant = "classification_signal"
	VariantFailed               Variant = "failed"
)

// ============================================================================
// NORMALIZED VIEW
// ============================================================================

// Evidence is the variant-independent view used by ranking.
// INVARIANTS:
// - NormalizedEffect is in [0, 1]
// - PValue is nil only for failed results
type Evidence struct {
	Score            float64  `json:"score"`                // Test statistic (r, t, F, chi2)
	PValue           *float64 `json:"p_value"`              // nil when no test could run
	EffectSize       float64  `json:"effect_size"`          // Raw effect in the test's own unit
	NormalizedEffect float64  `json:"normalized_effect"`    // Effect mapped to [0, 1]
	Importance       *float64 `json:"importance,omitempty"` // Model importance, classification only
	SampleSize       int      `json:"sample_size"`
	Failure          string   `json:"failure,omitempty"`
}

// Subject names the pair a result is about
type Subject struct {
	Predictor  string `json:"predictor"`
	Target     string `json:"target"`
	SampleSize int    `json:"sample_size"` // complete cases used
}

// Pair returns the subject of a result
func (s Subject) Pair() Subject { return s }

// Result is implemented by every result variant
type Result interface {
	Pair() Subject
	Variant() Variant
	Test() TestName
	Evidence() Evidence
}

// ============================================================================
// VARIANTS
// ============================================================================

// CorrelationResult comes from a numeric predictor against a numeric target
type CorrelationResult struct {
	Subject
	Method         TestName `json:"method"`
	Coefficient    float64  `json:"coefficient"`
	PValue         float64  `json:"p_value"`
	FallbackReason string   `json:"fallback_reason,omitempty"` // why Spearman replaced Pearson
}

func (r *CorrelationResult) Variant() Variant { return VariantCorrelation }
func (r *CorrelationResult) Test() TestName   { return r.Method }

func (r *CorrelationResult) Evidence() Evidence {
	effect := clamp01(math.Abs(r.Coefficient))
	return Evidence{
		Score:            r.Coefficient,
		PValue:           ptr(r.PValue),
		EffectSize:       math.Abs(r.Coefficient),
		NormalizedEffect: effect,
		SampleSize:       r.SampleSize,
	}
}

// GroupDifferenceResult compares a numeric target across predictor groups
type GroupDifferenceResult struct {
	Subject
	Method     TestName           `json:"method"`
	Statistic  float64            `json:"statistic"`   // Welch t or ANOVA F
	PValue     float64            `json:"p_value"`
	EffectSize float64            `json:"effect_size"` // |Cohen's d| or eta squared
	Groups     int                `json:"groups"`
	GroupMeans map[string]float64 `json:"group_means"`
}

func (r *GroupDifferenceResult) Variant() Variant { return VariantGroupDifference }
func (r *GroupDifferenceResult) Test() TestName   { return r.Method }

func (r *GroupDifferenceResult) Evidence() Evidence {
	normalized := r.EffectSize
	if r.Method == TestWelchT {
		normalized = r.EffectSize / (1 + r.EffectSize)
	}
	return Evidence{
		Score:            r.Statistic,
		PValue:           ptr(r.PValue),
		EffectSize:       r.EffectSize,
		NormalizedEffect: clamp01(normalized),
		SampleSize:       r.SampleSize,
	}
}

// ClassificationSignalResult measures how well a predictor separates target classes
type ClassificationSignalResult struct {
	Subject
	Method     TestName `json:"method"`
	Statistic  float64  `json:"statistic"`   // chi2, r_pb or F
	PValue     float64  `json:"p_value"`
	EffectSize float64  `json:"effect_size"` // Cramér's V, |r_pb| or eta squared
	Classes    int      `json:"classes"`
	Importance float64  `json:"importance"` // share of the fitted model's weight
}

func (r *ClassificationSignalResult) Variant() Variant { return VariantClassificationSignal }
func (r *ClassificationSignalResult) Test() TestName   { return r.Method }

func (r *ClassificationSignalResult) Evidence() Evidence {
	return Evidence{
		Score:            r.Statistic,
		PValue:           ptr(r.PValue),
		EffectSize:       r.EffectSize,
		NormalizedEffect: clamp01(r.EffectSize),
		Importance:       ptr(r.Importance),
		SampleSize:       r.SampleSize,
	}
}

// FailedResult records a hypothesis that could not be tested
type FailedResult struct {
	Subject
	Kind      hypothesis.Kind `json:"kind"`
	ErrorKind string          `json:"error_kind"` // insufficient_data, test_execution_timeout, internal
	Reason    string          `json:"reason"`
}

func (r *FailedResult) Variant() Variant { return VariantFailed }
func (r *FailedResult) Test() TestName   { return TestNone }

func (r *FailedResult) Evidence() Evidence {
	return Evidence{SampleSize: r.SampleSize, Failure: r.Reason}
}

// Failed reports whether r is a FailedResult
func Failed(r Result) bool {
	_, ok := r.(*FailedResult)
	return ok
}

// SignificanceLabel describes a p-value in words. Each threshold is exclusive:
// p = 0.05 is "weak", not "moderate".
func SignificanceLabel(p *float64) string {
	switch {
	case p == nil:
		return "not tested"
	case *p < 0.001:
		return "very strong"
	case *p < 0.01:
		return "strong"
	case *p < 0.05:
		return "moderate"
	case *p < 0.1:
		return "weak"
	default:
		return "not significant"
	}
}

func ptr(v float64) *float64 { return &v }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
