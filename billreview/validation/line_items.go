package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

const unknownCategory = "unknown"

var categoryResolutionSteps = []string{
	"Update dim_proc table with valid categories for these CPT codes",
	"Verify CPT codes are correctly entered",
	"Check for typos in procedure codes",
}

type InvalidCategory struct {
	CPT      string  `json:"cpt"`
	Source   string  `json:"source"`
	Category *string `json:"category"`
	Reason   string  `json:"reason"`
}

type CategoryMismatch struct {
	Category   string   `json:"category"`
	HCFACount  int      `json:"hcfa_count"`
	OrderCount int      `json:"order_count"`
	Difference int      `json:"difference"`
	HCFACPTs   []string `json:"hcfa_cpts"`
	OrderCPTs  []string `json:"order_cpts"`
}

type ComparisonDetails struct {
	HCFACodes       []string          `json:"hcfa_codes"`
	OrderCodes      []string          `json:"order_codes"`
	HCFACategories  map[string]string `json:"hcfa_categories"`
	OrderCategories map[string]string `json:"order_categories"`
}

type LineItemResult struct {
	Status            string             `json:"status"`
	MatchType         string             `json:"match_type,omitempty"`
	BundleType        string             `json:"bundle_type,omitempty"`
	Reason            string             `json:"reason,omitempty"`
	Message           string             `json:"message,omitempty"`
	Codes             []string           `json:"codes,omitempty"`
	Categories        []string           `json:"categories,omitempty"`
	InvalidCategories []InvalidCategory  `json:"invalid_categories,omitempty"`
	Mismatches        []CategoryMismatch `json:"mismatches,omitempty"`
	LineItemMapping   map[string][]int64 `json:"line_item_mapping,omitempty"`
	ComparisonDetails *ComparisonDetails `json:"comparison_details,omitempty"`
	ResolutionSteps   []string           `json:"resolution_steps,omitempty"`
}

// LineItemValidator compares the billed procedures with the procedures on the order.
type LineItemValidator struct {
	categories Categories
	rules      *rules.Rules
}

func NewLineItemValidator(categories Categories, r *rules.Rules) *LineItemValidator {
	return &LineItemValidator{categories: categories, rules: r}
}

// Validate checks claim lines against order lines. When the claim matches a
// configured bundle every claim line is tagged with the bundle name in place.
func (v *LineItemValidator) Validate(lines []models.LineItem, orderLines []models.OrderLine) LineItemResult {
	var filtered []models.LineItem
	for _, line := range lines {
		if _, drop := constants.UnacceptableCPTs[line.CPT]; !drop {
			filtered = append(filtered, line)
		}
	}

	hcfaCodes := make(map[string]struct{})
	for _, line := range filtered {
		hcfaCodes[line.CPT] = struct{}{}
	}
	orderCodes := make(map[string]struct{})
	for _, line := range orderLines {
		orderCodes[line.CPT] = struct{}{}
	}

	if sameSet(hcfaCodes, orderCodes) {
		return LineItemResult{
			Status:    constants.StatusPass,
			MatchType: constants.MatchExact,
			Codes:     sortedKeys(hcfaCodes),
			Message:   "Exact match found.",
		}
	}

	if name, ok := v.rules.MatchBundle(sortedKeys(hcfaCodes)); ok {
		for i := range lines {
			lines[i].BundleType = name
		}
		return LineItemResult{
			Status:     constants.StatusBundled,
			BundleType: name,
			Codes:      sortedKeys(hcfaCodes),
			Message:    fmt.Sprintf("Claim matches bundle %s.", name),
		}
	}

	mapping := make(map[string][]int64)
	for cpt := range hcfaCodes {
		for _, ol := range orderLines {
			if ol.CPT == cpt {
				mapping[cpt] = append(mapping[cpt], ol.ID)
			}
		}
	}

	var invalid []InvalidCategory
	hcfaCategories := make(map[string]string)
	ancillary := make(map[string]struct{})
	for _, line := range filtered {
		cat, found := v.categories.Lookup(line.CPT)
		if !validCategory(cat, found) {
			invalid = append(invalid, InvalidCategory{CPT: line.CPT, Source: "hcfa", Category: nullable(cat, found), Reason: "Missing or invalid category"})
		}
		hcfaCategories[line.CPT] = orUnknown(cat)
		if v.categories.IsAncillary(line.CPT) {
			ancillary[line.CPT] = struct{}{}
		}
	}

	orderCategories := make(map[string]string)
	for _, line := range orderLines {
		cat, found := v.categories.Lookup(line.CPT)
		if !validCategory(cat, found) {
			invalid = append(invalid, InvalidCategory{CPT: line.CPT, Source: "order", Category: nullable(cat, found), Reason: "Missing or invalid category"})
		}
		orderCategories[line.CPT] = orUnknown(cat)
	}

	comparison := &ComparisonDetails{
		HCFACodes:       sortedKeys(hcfaCodes),
		OrderCodes:      sortedKeys(orderCodes),
		HCFACategories:  hcfaCategories,
		OrderCategories: orderCategories,
	}

	if len(invalid) > 0 {
		return LineItemResult{
			Status:            constants.StatusFail,
			Reason:            "Missing or invalid procedure categories",
			InvalidCategories: invalid,
			ComparisonDetails: comparison,
			Message:           fmt.Sprintf("Found %d CPT codes with missing or invalid categories", len(invalid)),
			ResolutionSteps:   categoryResolutionSteps,
		}
	}

	hcfaCounts := countCategories(hcfaCategories, ancillary)
	orderCounts := countCategories(orderCategories, ancillary)

	var mismatches []CategoryMismatch
	for _, cat := range sortedKeys(hcfaCounts) {
		count := hcfaCounts[cat]
		if orderCounts[cat] >= count {
			continue
		}
		mismatches = append(mismatches, CategoryMismatch{
			Category:   cat,
			HCFACount:  count,
			OrderCount: orderCounts[cat],
			Difference: count - orderCounts[cat],
			HCFACPTs:   codesIn(hcfaCategories, cat),
			OrderCPTs:  codesIn(orderCategories, cat),
		})
	}

	if len(mismatches) > 0 {
		return LineItemResult{
			Status:            constants.StatusFail,
			Reason:            "Category count mismatch",
			Mismatches:        mismatches,
			ComparisonDetails: comparison,
			Message:           fmt.Sprintf("Found %d category mismatches between HCFA and order data.", len(mismatches)),
		}
	}

	return LineItemResult{
		Status:            constants.StatusPass,
		MatchType:         constants.MatchCategory,
		Categories:        sortedKeys(hcfaCounts),
		LineItemMapping:   mapping,
		ComparisonDetails: comparison,
	}
}

func countCategories(categories map[string]string, exclude map[string]struct{}) map[string]int {
	counts := make(map[string]int)
	for cpt, cat := range categories {
		if _, skip := exclude[cpt]; skip {
			continue
		}
		counts[cat]++
	}
	return counts
}

func codesIn(categories map[string]string, cat string) []string {
	codes := []string{}
	for cpt, c := range categories {
		if c == cat {
			codes = append(codes, cpt)
		}
	}
	sort.Strings(codes)
	return codes
}

func orUnknown(cat string) string {
	if strings.TrimSpace(cat) == "" {
		return unknownCategory
	}
	return cat
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
