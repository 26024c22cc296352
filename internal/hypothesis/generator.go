package hypothesis

import (
	"fmt"

	"gostudio/domain/core"
	"gostudio/domain/hypothesis"
	"gostudio/domain/intent"
	"gostudio/domain/profile"
)

const (
	ReasonUnsupportedPairing = "unsupported pairing"
	ReasonIdentifier         = "identifier columns carry no signal"
	ReasonFreeText           = "free text is not testable"
)

type decision struct {
	kind   hypothesis.Kind
	reason string
}

// pairings is exhaustive over (role, target type); a missing key is a programming error.
var pairings = map[profile.Role]map[intent.TargetType]decision{
	profile.RoleNumericMetric: {
		intent.TargetRegression:     {kind: hypothesis.KindCorrelation},
		intent.TargetClassification: {kind: hypothesis.KindClassificationSignal},
	},
	profile.RoleCategorical: {
		intent.TargetRegression:     {kind: hypothesis.KindGroupDifference},
		intent.TargetClassification: {kind: hypothesis.KindClassificationSignal},
	},
	profile.RoleBoolean: {
		intent.TargetRegression:     {kind: hypothesis.KindGroupDifference},
		intent.TargetClassification: {kind: hypothesis.KindClassificationSignal},
	},
	profile.RoleDatetime: {
		intent.TargetRegression:     {reason: ReasonUnsupportedPairing},
		intent.TargetClassification: {kind: hypothesis.KindClassificationSignal},
	},
	profile.RoleIdentifier: {
		intent.TargetRegression:     {reason: ReasonIdentifier},
		intent.TargetClassification: {reason: ReasonIdentifier},
	},
	profile.RoleText: {
		intent.TargetRegression:     {reason: ReasonFreeText},
		intent.TargetClassification: {reason: ReasonFreeText},
	},
}

// Generator turns a profile and a resolved target into hypotheses.
type Generator struct{}

// NewGenerator creates a hypothesis generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds one hypothesis per eligible predictor. Every other column is
// returned as skipped with a reason; nothing is dropped silently.
func (g *Generator) Generate(p *profile.Profile, target string, targetType intent.TargetType) (*hypothesis.Set, error) {
	if _, ok := p.Entry(target); !ok {
		return nil, fmt.Errorf("%w: target %s", core.ErrColumnNotFound, target)
	}
	set := &hypothesis.Set{
		Target:     target,
		TargetType: targetType,
		Hypotheses: []hypothesis.Hypothesis{},
		Skipped:    []hypothesis.Skipped{},
	}
	for _, entry := range p.Columns {
		if entry.Name == target {
			continue
		}
		byTarget, ok := pairings[entry.Role]
		if !ok {
			return nil, fmt.Errorf("%w: no pairing rule for role %s", core.ErrInconsistentState, entry.Role)
		}
		d, ok := byTarget[targetType]
		if !ok {
			return nil, fmt.Errorf("%w: no pairing rule for target type %s", core.ErrInconsistentState, targetType)
		}
		if d.kind == "" {
			set.Skipped = append(set.Skipped, hypothesis.Skipped{Predictor: entry.Name, Role: entry.Role, Reason: d.reason})
			continue
		}
		set.Hypotheses = append(set.Hypotheses, hypothesis.Hypothesis{
			Predictor:     entry.Name,
			Target:        target,
			Kind:          d.kind,
			PredictorRole: entry.Role,
			TargetType:    targetType,
			Description:   describe(entry.Name, target, d.kind),
		})
	}
	return set, nil
}

func describe(predictor, target string, kind hypothesis.Kind) string {
	switch kind {
	case hypothesis.KindCorrelation:
		return fmt.Sprintf("%s moves together with %s", predictor, target)
	case hypothesis.KindGroupDifference:
		return fmt.Sprintf("%s differs across groups of %s", target, predictor)
	default:
		return fmt.Sprintf("%s helps separate the classes of %s", predictor, target)
	}
}
