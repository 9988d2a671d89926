package validation

import (
	"fmt"
	"strings"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

type UnitIssue struct {
	CPT          string  `json:"cpt"`
	Units        int     `json:"units"`
	IsAncillary  bool    `json:"is_ancillary"`
	ProcCategory *string `json:"proc_category"`
	AllowedUnits *int    `json:"allowed_units,omitempty"`
}

type UnitsDetails struct {
	AllUnitIssues          []UnitIssue `json:"all_unit_issues"`
	NonAncillaryViolations []UnitIssue `json:"non_ancillary_violations"`
	TotalViolations        int         `json:"total_violations"`
}

type UnitsResult struct {
	Status   string       `json:"status"`
	Details  UnitsDetails `json:"details"`
	Messages []string     `json:"messages"`
}

// UnitsValidator flags non-ancillary lines billed with more than one unit.
// Codes with a configured unit limit may bill up to that limit.
type UnitsValidator struct {
	categories Categories
	rules      *rules.Rules
}

func NewUnitsValidator(categories Categories, r *rules.Rules) *UnitsValidator {
	return &UnitsValidator{categories: categories, rules: r}
}

func (v *UnitsValidator) Validate(claim models.Claim) UnitsResult {
	issues := []UnitIssue{}
	violations := []UnitIssue{}

	for _, line := range claim.LineItems {
		units := models.SafeInt(line.Units, 1)
		if units <= 1 {
			continue
		}

		cpt := strings.TrimSpace(line.CPT)
		cat, found := v.categories.Lookup(cpt)
		issue := UnitIssue{
			CPT:          cpt,
			Units:        units,
			IsAncillary:  v.categories.IsAncillary(cpt),
			ProcCategory: nullable(cat, found),
		}

		violation := !issue.IsAncillary
		if limit, ok := v.rules.AllowedUnits(cpt); ok {
			issue.AllowedUnits = &limit
			violation = violation && units > limit
		}

		issues = append(issues, issue)
		if violation {
			violations = append(violations, issue)
		}
	}

	result := UnitsResult{
		Status: constants.StatusPass,
		Details: UnitsDetails{
			AllUnitIssues:          issues,
			NonAncillaryViolations: violations,
			TotalViolations:        len(violations),
		},
		Messages: []string{"No unit violations found"},
	}
	if len(violations) > 0 {
		result.Status = constants.StatusFail
		result.Messages = []string{fmt.Sprintf("Non-ancillary CPT codes with units > 1 found: %d", len(violations))}
	}

	return result
}
