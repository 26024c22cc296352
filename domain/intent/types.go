package intent

// Category is the kind of question the user is asking.
type Category string

const (
	CategoryDescriptive  Category = "DESCRIPTIVE"
	CategoryDiagnostic   Category = "DIAGNOSTIC"
	CategoryPredictive   Category = "PREDICTIVE"
	CategoryExplanatory  Category = "EXPLANATORY"
	CategoryDataCleaning Category = "DATA_CLEANING"
)

// NeedsTarget reports whether the category runs a driver investigation.
func (c Category) NeedsTarget() bool {
	switch c {
	case CategoryDiagnostic, CategoryPredictive, CategoryExplanatory:
		return true
	}
	return false
}

// TargetType decides which test families apply to the outcome.
type TargetType string

const (
	TargetRegression     TargetType = "REGRESSION"
	TargetClassification TargetType = "CLASSIFICATION"
)

// Candidate is a column that could serve as the outcome variable.
type Candidate struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Resolution is the outcome of interpreting a goal against a profile.
type Resolution struct {
	Goal       string      `json:"goal"`
	Category   Category    `json:"category"`
	Target     string      `json:"target,omitempty"`
	TargetType TargetType  `json:"target_type,omitempty"`
	Candidates []Candidate `json:"candidates"`
	Ambiguous  bool        `json:"ambiguous"`
	Downgraded bool        `json:"downgraded,omitempty"`
	Confirmed  bool        `json:"confirmed,omitempty"`
}

// Resolved reports whether a single target was chosen.
func (r Resolution) Resolved() bool { return r.Target != "" }

// CandidateColumns lists candidate names in score order.
func (r Resolution) CandidateColumns() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Column
	}
	return out
}
