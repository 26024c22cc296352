package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"gostudio/domain/profile"
	"gostudio/domain/ranking"
	"gostudio/domain/session"
)

// maxHighlights caps every generated list
const maxHighlights = 8

// profileView is the compact profile the collaborator sees
type profileView struct {
	Rows          int                               `json:"total_rows"`
	Columns       int                               `json:"total_columns"`
	DuplicateRows int                               `json:"duplicate_rows"`
	Roles         map[profile.Role]string           `json:"columns_by_role"`
	HighMissing   map[string]float64                `json:"high_missing_columns"`
	Metrics       map[string]profile.NumericSummary `json:"metric_ranges"`
}

func newProfileView(p *profile.Profile) profileView {
	v := profileView{
		Rows:          p.RowCount,
		Columns:       p.ColumnCount,
		DuplicateRows: p.DuplicateRows,
		Roles:         make(map[profile.Role]string),
		HighMissing:   make(map[string]float64),
		Metrics:       make(map[string]profile.NumericSummary),
	}
	for _, role := range profile.AllRoles {
		if cols := p.ColumnsWithRole(role); len(cols) > 0 {
			v.Roles[role] = strings.Join(cols, ", ")
		}
	}
	for _, e := range p.Columns {
		if e.MissingPercent > 10 {
			v.HighMissing[e.Name] = e.MissingPercent
		}
		if e.Role == profile.RoleNumericMetric && e.Numeric != nil {
			v.Metrics[e.Name] = *e.Numeric
		}
	}
	return v
}

// driverView is one ranked driver as the collaborator sees it
type driverView struct {
	Predictor    string   `json:"feature"`
	Composite    float64  `json:"strength_score"`
	Significance string   `json:"significance"`
	Test         string   `json:"test"`
	PValue       *float64 `json:"p_value"`
	EffectSize   float64  `json:"effect_size"`
	Importance   *float64 `json:"feature_importance,omitempty"`
}

func newDriverView(d ranking.Driver) driverView {
	v := driverView{Predictor: d.Predictor, Composite: d.Composite, Significance: d.SignificanceLabel}
	if d.Result.Result != nil {
		ev := d.Result.Evidence()
		v.Test, v.PValue, v.EffectSize, v.Importance = string(d.Result.Test()), ev.PValue, ev.EffectSize, ev.Importance
	}
	return v
}

// ============================================================================
// TEMPLATES
// ============================================================================

func fallbackDomain(p *profile.Profile) session.DomainInsight {
	metrics := p.ColumnsWithRole(profile.RoleNumericMetric)
	datetimes := p.ColumnsWithRole(profile.RoleDatetime)
	identifiers := p.ColumnsWithRole(profile.RoleIdentifier)

	insight := session.DomainInsight{Fallback: true}
	switch {
	case len(datetimes) > 0 && len(metrics) > 0:
		insight.Domain = "Operational Time-Series Dataset"
		insight.Confidence = 0.58
		insight.Reasoning = fmt.Sprintf("Detected datetime column(s) %s and metric column(s) %s, indicating trend-ready operational data.",
			head(datetimes, 2), head(metrics, 2))
	case len(metrics) > 0:
		insight.Domain = "Business Metrics Dataset"
		insight.Confidence = 0.52
		insight.Reasoning = fmt.Sprintf("Detected measurable numeric metrics (%s) suitable for segmented KPI analysis.", head(metrics, 3))
	case len(identifiers) > 0 && len(identifiers) >= max(1, p.ColumnCount/2):
		insight.Domain = "Reference or Lookup Dataset"
		insight.Confidence = 0.49
		insight.Reasoning = "Identifier columns dominate the schema, which suggests a reference table rather than a metric-heavy dataset."
	default:
		insight.Domain = "Structured Dataset with Limited Domain Signals"
		insight.Confidence = 0.36
		insight.Reasoning = "The profile carries few metric or time signals, so domain confidence stays conservative."
	}
	return insight
}

func fallbackSummary(p *profile.Profile, domain session.DomainInsight) session.DatasetSummary {
	metrics := p.ColumnsWithRole(profile.RoleNumericMetric)
	datetimes := p.ColumnsWithRole(profile.RoleDatetime)
	label := strings.ToLower(domain.Domain)
	if label == "" {
		label = "structured"
	}

	highlights := []string{
		fmt.Sprintf("Dataset contains %d rows across %d columns.", p.RowCount, p.ColumnCount),
		fmt.Sprintf("Role mix: %d metric, %d dimension, %d datetime, %d identifier.",
			len(metrics), len(p.ColumnsWithRole(profile.RoleCategorical)), len(datetimes), len(p.ColumnsWithRole(profile.RoleIdentifier))),
	}
	spread := 0
	for _, name := range metrics {
		e, ok := p.Entry(name)
		if !ok || e.Numeric == nil || spread == 3 {
			continue
		}
		highlights = append(highlights, fmt.Sprintf("%s spans from %.3g to %.3g (std %.3g).", name, e.Numeric.Min, e.Numeric.Max, e.Numeric.Std))
		spread++
	}
	if p.DuplicateRows > 0 {
		highlights = append(highlights, fmt.Sprintf("%d duplicate rows detected, indicating integrity risk.", p.DuplicateRows))
	}

	incomplete := p.IncompleteColumns()
	sort.SliceStable(incomplete, func(i, j int) bool { return incomplete[i].MissingPercent > incomplete[j].MissingPercent })
	var over10 []string
	for _, e := range incomplete {
		if e.MissingPercent > 10 {
			over10 = append(over10, e.Name)
		}
	}
	if len(over10) > 0 {
		highlights = append(highlights, fmt.Sprintf("Missingness above 10%% in %d column(s): %s.", len(over10), head(over10, 5)))
	}
	if len(incomplete) > 0 {
		highlights = append(highlights, fmt.Sprintf("Highest missingness is %.2f%% in column '%s'.", incomplete[0].MissingPercent, incomplete[0].Name))
	}
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}

	return session.DatasetSummary{
		Headline: fmt.Sprintf("This dataset is best described as %s data with %d rows and %d columns. It includes %d measurable metric column(s) and %d time-oriented column(s).",
			label, p.RowCount, p.ColumnCount, len(metrics), len(datetimes)),
		Highlights: highlights,
		Fallback:   true,
	}
}

func fallbackAnswer(r *ranking.Ranking) session.Answer {
	top := r.Top(3)
	if len(top) == 0 {
		return session.Answer{
			Narrative: "No evidence-based drivers could be identified for the current dataset and target.",
			Evidence:  []string{"No predictor produced a usable statistical result."},
			Fallback:  true,
		}
	}

	names := make([]string, len(top))
	evidence := make([]string, 0, len(top)+1)
	for i, d := range top {
		names[i] = d.Predictor
		ev := d.Result.Evidence()
		parts := []string{fmt.Sprintf("%s (strength %.2f, %s)", d.Predictor, d.Composite, d.SignificanceLabel)}
		if ev.PValue != nil {
			parts = append(parts, fmt.Sprintf("p=%.4f", *ev.PValue))
		}
		parts = append(parts, fmt.Sprintf("%s effect=%.3f", d.Result.Test(), ev.EffectSize))
		if ev.Importance != nil {
			parts = append(parts, fmt.Sprintf("importance=%.3f", *ev.Importance))
		}
		evidence = append(evidence, strings.Join(parts, ", "))
	}
	if n := len(r.Flags); n > 0 {
		evidence = append(evidence, fmt.Sprintf("%d column(s) could not be tested and are listed as data-quality flags.", n))
	}

	strongest := top[0]
	return session.Answer{
		Narrative: fmt.Sprintf("The strongest driver of %s is %s, with the highest composite score (%.2f). Top drivers are %s.",
			r.Target, strongest.Predictor, strongest.Composite, strings.Join(names, ", ")),
		Evidence: evidence,
		Fallback: true,
	}
}

func head(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}
