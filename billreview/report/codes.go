package report

import "strings"

// Error codes assigned to failed validations.
const (
	ModifierInvalid  = "MOD_001"
	UnitsInvalid     = "UNIT_001"
	RateMismatch     = "RATE_001"
	BundleError      = "BNDL_001"
	LineItemMismatch = "LINE_001"
	UnknownError     = "UNK_001"
)

// Severity levels written to failure records.
const (
	SeverityError   = "ERROR"
	SeverityWarning = "WARNING"
	SeverityInfo    = "INFO"
)

var descriptions = map[string]string{
	ModifierInvalid:  "Invalid modifier combination or usage",
	UnitsInvalid:     "Invalid unit count for procedure",
	RateMismatch:     "Rate does not match expected value",
	BundleError:      "Invalid bundle configuration",
	LineItemMismatch: "Line item mismatch with reference data",
}

// Description returns the human readable description of an error code.
func Description(code string) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Unknown error"
}

// typeRule maps a validation type substring to its code and suggestion. The
// first matching rule wins.
type typeRule struct {
	substr     string
	code       string
	suggestion string
}

var typeRules = []typeRule{
	{"modifier", ModifierInvalid, "Review modifier usage and ensure compatibility with procedure code."},
	{"unit", UnitsInvalid, "Check unit count against procedure code guidelines."},
	{"rate", RateMismatch, "Verify rate calculation and provider network status."},
	{"bundle", BundleError, "Review bundle configuration and component procedures."},
	{"line_item", LineItemMismatch, ""},
}

const defaultSuggestion = "Review validation details and compare with reference data."

func matchType(validationType string) (typeRule, bool) {
	vt := strings.ToLower(validationType)
	for _, r := range typeRules {
		if strings.Contains(vt, r.substr) {
			return r, true
		}
	}
	return typeRule{}, false
}

// ErrorCode maps a validation type to its error code.
func ErrorCode(validationType string) string {
	if r, ok := matchType(validationType); ok {
		return r.code
	}
	return UnknownError
}

// Suggestion returns the remediation hint shown for a validation type.
func Suggestion(validationType string) string {
	if r, ok := matchType(validationType); ok && r.suggestion != "" {
		return r.suggestion
	}
	return defaultSuggestion
}

// Severity grades a failed validation type. Rate and line item failures are
// errors, modifier and unit failures are warnings.
func Severity(validationType string) string {
	vt := strings.ToLower(validationType)
	switch {
	case strings.Contains(vt, "rate"), strings.Contains(vt, "line_item"):
		return SeverityError
	case strings.Contains(vt, "modifier"), strings.Contains(vt, "unit"):
		return SeverityWarning
	}
	return SeverityInfo
}
