package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

var testCategories = Categories{
	"73721": "MRI w/o",
	"73722": "MRI w/",
	"73723": "MRI w/&w/o",
	"72131": "CT w/o",
	"72132": "CT w/o",
	"95886": "EMG",
	"95910": "EMG",
	"99203": "E&M",
	"A9579": "Ancillary",
	"Q9967": "ancillary",
	"00000": "0",
	"11111": " ",
}

func line(cpt string, units int, modifier ...string) models.LineItem {
	l := models.LineItem{CPT: cpt, Units: models.NewFlexInt(units), Charge: "100.00"}
	if len(modifier) > 0 {
		m := modifier[0]
		l.Modifier = &m
	}
	return l
}

func orderLine(id int64, cpt string) models.OrderLine {
	return models.OrderLine{ID: id, OrderID: constants.TestOrderID, CPT: cpt, Units: 1}
}

func TestModifierValidator(t *testing.T) {
	tests := []struct {
		name    string
		lines   []models.LineItem
		status  string
		invalid []InvalidModifier
	}{
		{"no modifiers", []models.LineItem{line("73721", 1)}, constants.StatusPass, []InvalidModifier{}},
		{"allowed modifiers", []models.LineItem{line("73721", 1, "RT"), line("73722", 1, "LT,59")}, constants.StatusPass, []InvalidModifier{}},
		{"professional component", []models.LineItem{line("73721", 1, "26")}, constants.StatusFail, []InvalidModifier{{"73721", "26"}}},
		{"technical component lowercase", []models.LineItem{line("73721", 1, "rt,tc")}, constants.StatusFail, []InvalidModifier{{"73721", "rt,tc"}}},
		{"one of several lines", []models.LineItem{line("73721", 1, "RT"), line("72131", 1, "TC")}, constants.StatusFail, []InvalidModifier{{"72131", "TC"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ModifierValidator{}.Validate(models.Claim{LineItems: tt.lines})
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.invalid, result.InvalidModifiers)
			assert.Equal(t, len(tt.lines), result.Details.TotalChecked)
			assert.Equal(t, len(tt.invalid), result.Details.TotalInvalid)
		})
	}
}

func TestUnitsValidator(t *testing.T) {
	v := NewUnitsValidator(testCategories, rules.Default())

	tests := []struct {
		name       string
		lines      []models.LineItem
		status     string
		issues     int
		violations int
		message    string
	}{
		{"single units", []models.LineItem{line("73721", 1), line("A9579", 1)}, constants.StatusPass, 0, 0, "No unit violations found"},
		{"ancillary multiple units", []models.LineItem{line("A9579", 15)}, constants.StatusPass, 1, 0, "No unit violations found"},
		{"non-ancillary multiple units", []models.LineItem{line("73721", 2)}, constants.StatusFail, 1, 1, "Non-ancillary CPT codes with units > 1 found: 1"},
		{"unknown code multiple units", []models.LineItem{line("99999", 3)}, constants.StatusFail, 1, 1, "Non-ancillary CPT codes with units > 1 found: 1"},
		{"within allowed units", []models.LineItem{line("95886", 4)}, constants.StatusPass, 1, 0, "No unit violations found"},
		{"above allowed units", []models.LineItem{line("95886", 5), line("95910", 2)}, constants.StatusFail, 2, 2, "Non-ancillary CPT codes with units > 1 found: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(models.Claim{LineItems: tt.lines})
			assert.Equal(t, tt.status, result.Status)
			assert.Len(t, result.Details.AllUnitIssues, tt.issues)
			assert.Len(t, result.Details.NonAncillaryViolations, tt.violations)
			assert.Equal(t, tt.violations, result.Details.TotalViolations)
			assert.Equal(t, []string{tt.message}, result.Messages)
		})
	}
}

func TestUnitsValidatorParsesUnits(t *testing.T) {
	var lines []models.LineItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"cpt": "73721", "units": "2"},
		{"cpt": "73722", "units": "abc"},
		{"cpt": "72131", "units": 1.9}
	]`), &lines))

	result := NewUnitsValidator(testCategories, rules.Default()).Validate(models.Claim{LineItems: lines})
	assert.Equal(t, constants.StatusFail, result.Status)
	require.Len(t, result.Details.AllUnitIssues, 1)
	issue := result.Details.AllUnitIssues[0]
	assert.Equal(t, "73721", issue.CPT)
	assert.Equal(t, 2, issue.Units)
	assert.False(t, issue.IsAncillary)
	require.NotNil(t, issue.ProcCategory)
	assert.Equal(t, "MRI w/o", *issue.ProcCategory)
	assert.Nil(t, issue.AllowedUnits)
}

func TestLineItemValidator(t *testing.T) {
	v := NewLineItemValidator(testCategories, rules.Default())

	t.Run("exact match", func(t *testing.T) {
		result := v.Validate([]models.LineItem{line("73721", 1), line("51655", 1)},
			[]models.OrderLine{orderLine(1, "73721")})
		assert.Equal(t, constants.StatusPass, result.Status)
		assert.Equal(t, constants.MatchExact, result.MatchType)
		assert.Equal(t, []string{"73721"}, result.Codes)
		assert.Equal(t, "Exact match found.", result.Message)
	})

	t.Run("bundle", func(t *testing.T) {
		lines := []models.LineItem{line("95910", 1), line("95886", 2)}
		result := v.Validate(lines, []models.OrderLine{orderLine(1, "95886")})
		assert.Equal(t, constants.StatusBundled, result.Status)
		assert.Equal(t, "EMG Visit", result.BundleType)
		for _, l := range lines {
			assert.Equal(t, "EMG Visit", l.BundleType)
		}
	})

	t.Run("invalid categories", func(t *testing.T) {
		result := v.Validate([]models.LineItem{line("00000", 1), line("99999", 1)},
			[]models.OrderLine{orderLine(1, "11111"), orderLine(2, "73721")})
		assert.Equal(t, constants.StatusFail, result.Status)
		assert.Equal(t, "Missing or invalid procedure categories", result.Reason)
		assert.Equal(t, "Found 3 CPT codes with missing or invalid categories", result.Message)
		require.Len(t, result.InvalidCategories, 3)

		sources := map[string]string{}
		for _, ic := range result.InvalidCategories {
			sources[ic.CPT] = ic.Source
		}
		assert.Equal(t, map[string]string{"00000": "hcfa", "99999": "hcfa", "11111": "order"}, sources)
		assert.Len(t, result.ResolutionSteps, 3)
		require.NotNil(t, result.ComparisonDetails)
		assert.Equal(t, "unknown", result.ComparisonDetails.HCFACategories["99999"])
		assert.Equal(t, "0", result.ComparisonDetails.HCFACategories["00000"])
	})

	t.Run("category mismatch", func(t *testing.T) {
		result := v.Validate([]models.LineItem{line("72131", 1), line("72132", 1)},
			[]models.OrderLine{orderLine(1, "72131"), orderLine(2, "73721")})
		assert.Equal(t, constants.StatusFail, result.Status)
		assert.Equal(t, "Category count mismatch", result.Reason)
		require.Len(t, result.Mismatches, 1)
		assert.Equal(t, CategoryMismatch{
			Category:   "CT w/o",
			HCFACount:  2,
			OrderCount: 1,
			Difference: 1,
			HCFACPTs:   []string{"72131", "72132"},
			OrderCPTs:  []string{"72131"},
		}, result.Mismatches[0])
	})

	t.Run("category match ignores ancillary codes", func(t *testing.T) {
		result := v.Validate([]models.LineItem{line("72132", 1), line("A9579", 1)},
			[]models.OrderLine{orderLine(10, "72131"), orderLine(11, "73721"), orderLine(12, "A9579")})
		assert.Equal(t, constants.StatusPass, result.Status)
		assert.Equal(t, constants.MatchCategory, result.MatchType)
		assert.Equal(t, []string{"CT w/o"}, result.Categories)
		assert.Equal(t, map[string][]int64{"A9579": {12}}, result.LineItemMapping)
		assert.Equal(t, []string{"72132", "A9579"}, result.ComparisonDetails.HCFACodes)
		assert.Equal(t, []string{"72131", "73721", "A9579"}, result.ComparisonDetails.OrderCodes)
	})

	t.Run("duplicate claim codes count once", func(t *testing.T) {
		result := v.Validate([]models.LineItem{line("72132", 1), line("72132", 1)},
			[]models.OrderLine{orderLine(1, "72131")})
		assert.Equal(t, constants.StatusPass, result.Status)
		assert.Equal(t, constants.MatchCategory, result.MatchType)
	})
}
