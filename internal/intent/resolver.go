package intent

import (
	"fmt"
	"sort"
	"strings"

	"gostudio/domain/core"
	"gostudio/domain/intent"
	"gostudio/domain/profile"
	"gostudio/internal/profiling"
)

// Config holds the scoring thresholds of the resolver.
type Config struct {
	MentionScore        float64
	KeywordScore        float64
	ResolveThreshold    float64
	MaxClassCardinality int
}

// DefaultConfig returns the standard scoring thresholds.
func DefaultConfig() Config {
	return Config{
		MentionScore:        0.9,
		KeywordScore:        0.6,
		ResolveThreshold:    0.75,
		MaxClassCardinality: 20,
	}
}

var categoryStems = []struct {
	category intent.Category
	stems    []string
}{
	{intent.CategoryDataCleaning, []string{"clean", "missing", "duplicat", "outlier", "imput", "tidy"}},
	{intent.CategoryPredictive, []string{"predict", "forecast", "model", "project"}},
	{intent.CategoryDiagnostic, []string{"why", "driv", "caus", "impact", "affect", "correl", "compar"}},
	{intent.CategoryExplanatory, []string{"explain", "relationship", "influenc", "depend"}},
}

var outcomeStems = []string{
	"revenue", "sales", "profit", "income", "churn", "status", "approv", "default",
	"label", "outcome", "target", "score", "amount", "risk", "conver", "price",
	"cost", "retention",
}

// Resolver maps a goal and a profile to an intent and an outcome column.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve is deterministic: the same goal and profile always produce the same result.
func (r *Resolver) Resolve(goal string, p *profile.Profile) intent.Resolution {
	res := intent.Resolution{
		Goal:       goal,
		Category:   Categorize(goal),
		Candidates: []intent.Candidate{},
	}
	if !res.Category.NeedsTarget() {
		return res
	}

	res.Candidates = r.candidates(goal, p)
	if len(res.Candidates) == 0 {
		res.Category = intent.CategoryDescriptive
		res.Downgraded = true
		return res
	}

	top := res.Candidates[0]
	distinct := len(res.Candidates) == 1 || top.Score > res.Candidates[1].Score
	if top.Score >= r.cfg.ResolveThreshold && distinct {
		entry, _ := p.Entry(top.Column)
		if tt, err := r.ClassifyTarget(entry); err == nil {
			res.Target = top.Column
			res.TargetType = tt
			return res
		}
	}
	res.Ambiguous = true
	return res
}

// Confirm applies the user's explicit target choice to an earlier resolution.
func (r *Resolver) Confirm(prev intent.Resolution, column string, p *profile.Profile) (intent.Resolution, error) {
	entry, ok := p.Entry(column)
	if !ok {
		return prev, fmt.Errorf("%w: %s", core.ErrColumnNotFound, column)
	}
	tt, err := r.ClassifyTarget(entry)
	if err != nil {
		return prev, err
	}
	out := prev
	out.Candidates = append([]intent.Candidate(nil), prev.Candidates...)
	if !out.Category.NeedsTarget() {
		out.Category = intent.CategoryDiagnostic
	}
	out.Target = column
	out.TargetType = tt
	out.Ambiguous = false
	out.Confirmed = true
	return out, nil
}

// ClassifyTarget decides whether entry is a regression or classification target.
func (r *Resolver) ClassifyTarget(entry profile.ColumnEntry) (intent.TargetType, error) {
	switch entry.Role {
	case profile.RoleNumericMetric:
		return intent.TargetRegression, nil
	case profile.RoleCategorical, profile.RoleBoolean:
		if entry.UniqueCount < 2 {
			return "", &core.UnsupportedTargetError{Column: entry.Name, Role: string(entry.Role), Reason: "fewer than two classes"}
		}
		if entry.UniqueCount > r.cfg.MaxClassCardinality {
			return "", &core.UnsupportedTargetError{
				Column: entry.Name,
				Role:   string(entry.Role),
				Reason: fmt.Sprintf("%d classes exceed the limit of %d", entry.UniqueCount, r.cfg.MaxClassCardinality),
			}
		}
		return intent.TargetClassification, nil
	}
	return "", &core.UnsupportedTargetError{Column: entry.Name, Role: string(entry.Role), Reason: "role cannot be an outcome"}
}

func (r *Resolver) candidates(goal string, p *profile.Profile) []intent.Candidate {
	goalTokens := profiling.NameTokens(goal)

	var out []intent.Candidate
	for _, entry := range p.Columns {
		if !r.outcomeSuitable(entry) {
			continue
		}
		nameTokens := profiling.NameTokens(entry.Name)
		switch {
		case mentioned(nameTokens, goalTokens):
			out = append(out, intent.Candidate{Column: entry.Name, Score: r.cfg.MentionScore, Reason: "named in the goal"})
		case hasOutcomeStem(nameTokens):
			out = append(out, intent.Candidate{Column: entry.Name, Score: r.cfg.KeywordScore, Reason: "name suggests an outcome"})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func (r *Resolver) outcomeSuitable(entry profile.ColumnEntry) bool {
	switch entry.Role {
	case profile.RoleNumericMetric:
		return true
	case profile.RoleCategorical, profile.RoleBoolean:
		return entry.UniqueCount >= 2 && entry.UniqueCount <= r.cfg.MaxClassCardinality
	}
	return false
}

// Categorize assigns an intent category from the goal's wording.
func Categorize(goal string) intent.Category {
	tokens := profiling.NameTokens(goal)
	for _, family := range categoryStems {
		for _, tok := range tokens {
			for _, stem := range family.stems {
				if strings.HasPrefix(tok, stem) {
					return family.category
				}
			}
		}
	}
	return intent.CategoryDescriptive
}

// mentioned reports whether every token of a column name appears in the goal.
// Tokens of four or more letters also match their inflections ("churn" and "churned").
func mentioned(nameTokens, goalTokens []string) bool {
	if len(nameTokens) == 0 {
		return false
	}
	for _, tok := range nameTokens {
		if !containsToken(goalTokens, tok) {
			return false
		}
	}
	return true
}

func containsToken(goalTokens []string, tok string) bool {
	for _, g := range goalTokens {
		if g == tok {
			return true
		}
		if len(g) >= 4 && len(tok) >= 4 && (strings.HasPrefix(tok, g) || strings.HasPrefix(g, tok)) {
			return true
		}
	}
	return false
}

func hasOutcomeStem(nameTokens []string) bool {
	for _, tok := range nameTokens {
		for _, stem := range outcomeStems {
			if strings.HasPrefix(tok, stem) {
				return true
			}
		}
	}
	return false
}
