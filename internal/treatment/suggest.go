package treatment

import (
	"fmt"
	"strings"

	"gostudio/domain/profile"
	"gostudio/domain/table"
	"gostudio/domain/treatment"
)

// UnknownLabel is the constant used to fill missing text and category values.
const UnknownLabel = "UNKNOWN"

// SolutionID derives the deterministic id of a solution.
func SolutionID(action treatment.ActionKind, columns []string) string {
	return fmt.Sprintf("%s:%s", action, strings.Join(columns, ","))
}

// Suggest proposes remediations for every incomplete column of p. Solutions are
// ordered by column order, then by preference within the column.
func (e *Engine) Suggest(p *profile.Profile) []treatment.Solution {
	var out []treatment.Solution
	incomplete := p.IncompleteColumns()

	for _, entry := range incomplete {
		for _, action := range actionsFor(entry) {
			out = append(out, e.solution(p, entry, action))
		}
	}

	if len(incomplete) > 1 {
		cols := make([]string, len(incomplete))
		for i, entry := range incomplete {
			cols[i] = entry.Name
		}
		out = append(out, treatment.Solution{
			ID:           SolutionID(treatment.ActionDropRows, cols),
			Title:        "Drop incomplete rows",
			Description:  fmt.Sprintf("Remove every row with a missing value in any of %d columns (%.1f%% of cells are missing).", len(cols), p.MissingPercent),
			Action:       treatment.ActionDropRows,
			Columns:      cols,
			TableVersion: p.TableVersion,
		})
	}
	return out
}

func actionsFor(entry profile.ColumnEntry) []treatment.ActionKind {
	var actions []treatment.ActionKind
	switch entry.Role {
	case profile.RoleNumericMetric:
		actions = []treatment.ActionKind{treatment.ActionImputeMean, treatment.ActionImputeMedian, treatment.ActionImputeConstant}
	case profile.RoleCategorical, profile.RoleBoolean:
		actions = []treatment.ActionKind{treatment.ActionImputeMode, treatment.ActionImputeConstant}
	case profile.RoleDatetime:
		actions = []treatment.ActionKind{treatment.ActionForwardFill}
	case profile.RoleText:
		if entry.Datatype == table.KindString {
			actions = []treatment.ActionKind{treatment.ActionImputeConstant}
		}
	}
	if entry.MissingPercent < 100 {
		actions = append(actions, treatment.ActionDropRows)
	}
	return append(actions, treatment.ActionFlagOnly)
}

func (e *Engine) solution(p *profile.Profile, entry profile.ColumnEntry, action treatment.ActionKind) treatment.Solution {
	sol := treatment.Solution{
		ID:           SolutionID(action, []string{entry.Name}),
		Action:       action,
		Columns:      []string{entry.Name},
		TableVersion: p.TableVersion,
	}
	missing := fmt.Sprintf("%d missing values (%.1f%%)", entry.MissingCount, entry.MissingPercent)

	switch action {
	case treatment.ActionImputeMean:
		sol.Title = fmt.Sprintf("Fill %s with the mean", entry.Name)
		sol.Description = fmt.Sprintf("Replace %s in %s with the column average.", missing, entry.Name)
	case treatment.ActionImputeMedian:
		sol.Title = fmt.Sprintf("Fill %s with the median", entry.Name)
		sol.Description = fmt.Sprintf("Replace %s in %s with the column median, which is robust to outliers.", missing, entry.Name)
	case treatment.ActionImputeMode:
		sol.Title = fmt.Sprintf("Fill %s with the most common value", entry.Name)
		sol.Description = fmt.Sprintf("Replace %s in %s with its most frequent value.", missing, entry.Name)
	case treatment.ActionImputeConstant:
		constant := constantFor(entry)
		sol.Constant = &constant
		sol.Title = fmt.Sprintf("Fill %s with %q", entry.Name, constant)
		sol.Description = fmt.Sprintf("Replace %s in %s with the fixed value %q.", missing, entry.Name, constant)
	case treatment.ActionForwardFill:
		sol.Title = fmt.Sprintf("Carry %s forward", entry.Name)
		sol.Description = fmt.Sprintf("Replace %s in %s with the previous known value; leading gaps take the first known value.", missing, entry.Name)
	case treatment.ActionDropRows:
		sol.Title = fmt.Sprintf("Drop rows missing %s", entry.Name)
		sol.Description = fmt.Sprintf("Remove the %d rows where %s is missing.", entry.MissingCount, entry.Name)
	case treatment.ActionFlagOnly:
		sol.Title = fmt.Sprintf("Flag missing %s", entry.Name)
		sol.Description = fmt.Sprintf("Keep %s as-is and add a %s indicator column.", missing, FlagColumnName(entry.Name))
	}
	return sol
}

func constantFor(entry profile.ColumnEntry) string {
	switch entry.Datatype {
	case table.KindFloat:
		return "0"
	case table.KindBool:
		return "false"
	default:
		return UnknownLabel
	}
}

// FlagColumnName is the indicator column added by flag_only.
func FlagColumnName(column string) string {
	return column + "_missing"
}
