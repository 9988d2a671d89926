package report

// Priority severity levels used by the error catalog.
const (
	Critical = "CRITICAL"
	High     = "HIGH"
	Medium   = "MEDIUM"
	Low      = "LOW"
	Info     = "INFO"
)

var SeverityScores = map[string]int{
	Critical: 5,
	High:     4,
	Medium:   3,
	Low:      2,
	Info:     1,
}

// Categories names the groups error codes belong to.
var Categories = map[string]string{
	"billing": "Billing Error",
	"coding":  "Coding Error",
	"bundle":  "Bundle Error",
	"rate":    "Rate Error",
	"format":  "Format Error",
}

type ErrorDetails struct {
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Resolution string `json:"resolution"`
}

// ErrorManager ranks failures for follow up.
type ErrorManager struct {
	catalog map[string]ErrorDetails
}

func NewErrorManager() *ErrorManager {
	return &ErrorManager{catalog: map[string]ErrorDetails{
		ModifierInvalid:  {Severity: Medium, Category: "coding", Resolution: "Check modifier combinations."},
		UnitsInvalid:     {Severity: High, Category: "coding", Resolution: "Verify unit counts."},
		RateMismatch:     {Severity: High, Category: "rate", Resolution: "Ensure rate matches contract."},
		BundleError:      {Severity: Medium, Category: "bundle", Resolution: "Review bundle configuration."},
		LineItemMismatch: {Severity: Medium, Category: "coding", Resolution: "Check line item details."},
	}}
}

// GetErrorDetails returns the catalog entry for code, or nil for unknown codes.
func (m *ErrorManager) GetErrorDetails(code string) *ErrorDetails {
	d, ok := m.catalog[code]
	if !ok {
		return nil
	}
	return &d
}

// CalculatePriority scores a failure. Higher scores are more urgent: the severity
// score plus one point per $1000 of charges, plus 1 for in-network providers or 2 otherwise.
func (m *ErrorManager) CalculatePriority(severity string, financialImpact float64, networkStatus string) float64 {
	network := 2.0
	if networkStatus == "in-network" {
		network = 1
	}
	return float64(SeverityScores[severity]) + financialImpact/1000 + network
}
