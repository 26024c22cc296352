package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/domain/core"
	"gostudio/domain/intent"
	"gostudio/domain/profile"
	"gostudio/domain/table"
	"gostudio/internal/profiling"
	"gostudio/internal/testkit"
)

func profileOf(tbl *table.Table) *profile.Profile {
	return profiling.NewProfiler(profiling.DefaultConfig()).Profile(tbl)
}

func customerProfile() *profile.Profile {
	return profileOf(testkit.NewCustomerDataGenerator(testkit.DefaultCustomerConfig()).Generate())
}

func TestCategorize(t *testing.T) {
	cases := map[string]intent.Category{
		"What drives revenue?":                 intent.CategoryDiagnostic,
		"Why do customers churn":               intent.CategoryDiagnostic,
		"Please clean up the missing values":   intent.CategoryDataCleaning,
		"Can we predict churn next quarter":    intent.CategoryPredictive,
		"Explain the relationship with tenure": intent.CategoryExplanatory,
		"Give me an overview":                  intent.CategoryDescriptive,
	}
	for goal, want := range cases {
		assert.Equal(t, want, Categorize(goal), goal)
	}
}

func TestResolve_MentionedTarget(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve("What drives revenue?", customerProfile())

	require.True(t, res.Resolved())
	assert.Equal(t, "revenue", res.Target)
	assert.Equal(t, intent.TargetRegression, res.TargetType)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, "revenue", res.Candidates[0].Column)
	assert.Equal(t, 0.9, res.Candidates[0].Score)
}

func TestResolve_InflectedMention(t *testing.T) {
	r := NewResolver(DefaultConfig())
	res := r.Resolve("Why do customers churn?", customerProfile())

	require.True(t, res.Resolved())
	assert.Equal(t, "churned", res.Target)
	assert.Equal(t, intent.TargetClassification, res.TargetType)
}

func TestResolve_TieRequiresDisambiguation(t *testing.T) {
	r := NewResolver(DefaultConfig())
	p := profileOf(testkit.TwoOutcomeTable(60, 7))

	res := r.Resolve("What is driving our numbers?", p)
	assert.False(t, res.Resolved())
	assert.True(t, res.Ambiguous)
	assert.Equal(t, []string{"revenue", "score"}, res.CandidateColumns())

	res = r.Resolve("Compare what drives revenue and score", p)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, 0.9, res.Candidates[0].Score)
	assert.Equal(t, 0.9, res.Candidates[1].Score)

	confirmed, err := r.Confirm(res, "score", p)
	require.NoError(t, err)
	assert.Equal(t, "score", confirmed.Target)
	assert.True(t, confirmed.Confirmed)
	assert.False(t, confirmed.Ambiguous)
}

func TestResolve_NoCandidatesDowngrades(t *testing.T) {
	tbl := table.MustNew("t.csv",
		table.FloatColumn("x", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		table.FloatColumn("y", []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 22, 24}),
	)
	res := NewResolver(DefaultConfig()).Resolve("why is this happening", profileOf(tbl))
	assert.Equal(t, intent.CategoryDescriptive, res.Category)
	assert.True(t, res.Downgraded)
	assert.False(t, res.Ambiguous)
	assert.Empty(t, res.Candidates)
}

func TestResolve_DescriptiveNeedsNoTarget(t *testing.T) {
	res := NewResolver(DefaultConfig()).Resolve("give me a summary of revenue", customerProfile())
	assert.Equal(t, intent.CategoryDescriptive, res.Category)
	assert.False(t, res.Resolved())
	assert.False(t, res.Ambiguous)
}

func TestResolve_Idempotent(t *testing.T) {
	r := NewResolver(DefaultConfig())
	p := customerProfile()
	for _, goal := range []string{"What drives revenue?", "what drives things", "summarize"} {
		assert.Equal(t, r.Resolve(goal, p), r.Resolve(goal, p), goal)
	}
}

func TestClassifyTarget(t *testing.T) {
	r := NewResolver(DefaultConfig())
	p := customerProfile()

	notes, _ := p.Entry("notes")
	_, err := r.ClassifyTarget(notes)
	var unsupported *core.UnsupportedTargetError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "notes", unsupported.Column)

	region, _ := p.Entry("region")
	tt, err := r.ClassifyTarget(region)
	require.NoError(t, err)
	assert.Equal(t, intent.TargetClassification, tt)

	_, err = r.Confirm(intent.Resolution{}, "customer_id", p)
	assert.ErrorIs(t, err, core.ErrUnsupportedTarget)
	_, err = r.Confirm(intent.Resolution{}, "missing_column", p)
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}
