package validation

import (
	"strings"

	"github.com/clarity-dx/bill-review/billreview/constants"
)

// Categories maps a procedure code to its dim_proc category.
type Categories map[string]string

// Lookup returns the category for cpt and whether cpt is present in dim_proc.
func (c Categories) Lookup(cpt string) (string, bool) {
	cat, ok := c[cpt]
	return cat, ok
}

// IsAncillary reports whether cpt is categorized as ancillary.
func (c Categories) IsAncillary(cpt string) bool {
	return strings.EqualFold(strings.TrimSpace(c[cpt]), constants.AncillaryCategory)
}

// validCategory is false for missing, blank and "0" categories.
func validCategory(cat string, found bool) bool {
	cat = strings.TrimSpace(cat)
	return found && cat != "" && cat != "0"
}

// nullable returns nil when the code had no dim_proc row.
func nullable(cat string, found bool) *string {
	if !found {
		return nil
	}
	return &cat
}
