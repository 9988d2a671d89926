package constants

// This is set during compilation.
var Version = "latest"

// Validation outcomes.
const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPartial = "PARTIAL"
	StatusBundled = "BUNDLED"
)

// Validation steps, in pipeline order. The step name is recorded as the
// validation_type of the logged result.
const (
	ModifierCheck = "modifier_check"
	UnitCheck     = "unit_check"
	BundleCheck   = "bundle_check"
	LineItems     = "line_items"
	Rate          = "rate"
	Final         = "final"
	ProcessError  = "process_error"
)

const (
	MatchExact    = "exact_match"
	MatchCategory = "category_match"
)

// Category assigned to ancillary procedures in dim_proc. Compared case-insensitively.
const AncillaryCategory = "ancillary"

// UnacceptableCPTs are dropped from the claim before line item matching.
var UnacceptableCPTs = map[string]struct{}{
	"51655": {},
}

// InvalidModifiers fail the modifier check when any of them appears in a line's modifier.
var InvalidModifiers = []string{"26", "TC"}

// Session output file naming.
const (
	SessionTimestampFormat = "20060102_150405"
	PassesFilePrefix       = "validation_passes_"
	FailuresFilePrefix     = "validation_failures_"
	SummaryFilePrefix      = "validation_summary_"
)

// Correction workflow states.
const (
	CorrectionPending  = "pending"
	CorrectionApproved = "approved"
	CorrectionRejected = "rejected"
)
