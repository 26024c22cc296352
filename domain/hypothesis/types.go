package hypothesis

import (
	"gostudio/domain/intent"
	"gostudio/domain/profile"
)

// Kind is the relationship a hypothesis proposes between predictor and target.
type Kind string

const (
	KindCorrelation          Kind = "correlation"
	KindGroupDifference      Kind = "group_difference"
	KindClassificationSignal Kind = "classification_signal"
)

// Hypothesis is one testable predictor/target pairing.
type Hypothesis struct {
	Predictor     string            `json:"predictor"`
	Target        string            `json:"target"`
	Kind          Kind              `json:"kind"`
	PredictorRole profile.Role      `json:"predictor_role"`
	TargetType    intent.TargetType `json:"target_type"`
	Description   string            `json:"description"`
}

// Skipped records a column that was deliberately not tested.
type Skipped struct {
	Predictor string       `json:"predictor"`
	Role      profile.Role `json:"role"`
	Reason    string       `json:"reason"`
}

// Set is the generator output: every non-target column lands in exactly one list.
type Set struct {
	Target     string            `json:"target"`
	TargetType intent.TargetType `json:"target_type"`
	Hypotheses []Hypothesis      `json:"hypotheses"`
	Skipped    []Skipped         `json:"skipped"`
}
