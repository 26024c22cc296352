package plan

import (
	"fmt"

	"gostudio/domain/intent"
	"gostudio/domain/plan"
	"gostudio/domain/profile"
)

// Planner builds deterministic plans for intents that need no target column
type Planner struct{}

// NewPlanner creates a planner
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan returns the steps for category over the profiled table
func (pl *Planner) Plan(category intent.Category, p *profile.Profile) (*plan.Plan, error) {
	out := &plan.Plan{Category: category, TableVersion: p.TableVersion}
	add := func(description string, op plan.Operation, params plan.Params) {
		out.Steps = append(out.Steps, plan.Step{
			ID:          fmt.Sprintf("step_%d", len(out.Steps)+1),
			Description: description,
			Operation:   op,
			Params:      params,
		})
	}

	numeric := p.ColumnsWithRole(profile.RoleNumericMetric)
	categorical := p.ColumnsWithRole(profile.RoleCategorical)
	datetime := p.ColumnsWithRole(profile.RoleDatetime)

	switch category {
	case intent.CategoryDescriptive:
		add("Generate dataset summary statistics.", plan.OpSummary, plan.Params{})
		if len(categorical) > 0 && len(numeric) > 0 {
			add("Compare the primary metric across the primary category.", plan.OpGroupBy, plan.Params{
				GroupBy:      categorical[0],
				TargetColumn: numeric[0],
				Agg:          "mean",
			})
		}
		if len(numeric) > 1 {
			add("Find the strongest relationship between numeric metrics.", plan.OpCorrelation, plan.Params{})
		}
		if len(datetime) > 0 {
			params := plan.Params{DatetimeColumn: datetime[0]}
			if len(numeric) > 0 {
				params.TargetColumn = numeric[0]
			}
			add("Assess the monthly trend of the primary metric.", plan.OpTrend, params)
		}
	case intent.CategoryDataCleaning:
		add("Remove duplicate rows and fill missing values.", plan.OpCleanData, plan.Params{
			Operations: []string{plan.CleanDropDuplicates, plan.CleanFillNumeric, plan.CleanFillCategorical},
		})
		add("Summarize the cleaned dataset.", plan.OpSummary, plan.Params{})
	default:
		return nil, fmt.Errorf("intent %s needs a target column, not a plan", category)
	}
	return out, nil
}
