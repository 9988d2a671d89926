package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/clarity-dx/bill-review/billreview/models"
)

type FileInfo struct {
	FileName  string `json:"file_name"`
	OrderID   string `json:"order_id"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"validation_session_id"`
}

type FailureSummary struct {
	Status         string `json:"status"`
	ValidationType string `json:"validation_type"`
	SeverityLevel  string `json:"severity_level"`
	TotalChecks    int    `json:"total_checks"`
	FailedChecks   int    `json:"failed_checks"`
}

type FailureDetails struct {
	ValidationStep   string          `json:"validation_step"`
	ErrorCode        string          `json:"error_code"`
	ErrorMessage     string          `json:"error_message"`
	ErrorDescription string          `json:"error_description"`
	ExpectedValue    json.RawMessage `json:"expected_value"`
	ActualValue      json.RawMessage `json:"actual_value"`
	Suggestion       string          `json:"suggestion"`
}

type ReferenceData struct {
	ProviderInfo *models.Provider `json:"provider_info"`
	PatientInfo  *models.Order    `json:"patient_info"`
}

type FailureContext struct {
	HCFAData          *models.Claim   `json:"hcfa_data"`
	ReferenceData     ReferenceData   `json:"reference_data"`
	ComparisonDetails json.RawMessage `json:"comparison_details"`
}

// FailureRecord is one entry of a validation_failures file.
type FailureRecord struct {
	FileInfo          FileInfo       `json:"file_info"`
	ValidationSummary FailureSummary `json:"validation_summary"`
	FailureDetails    FailureDetails `json:"failure_details"`
	Context           FailureContext `json:"context"`
}

type PassSummary struct {
	Status       string `json:"status"`
	TotalChecks  int    `json:"total_checks"`
	FailedChecks int    `json:"failed_checks"`
}

type PassLineItem struct {
	DateOfService string               `json:"date_of_service"`
	CPT           string               `json:"cpt"`
	Modifier      *string              `json:"modifier"`
	Units         models.FlexInt       `json:"units"`
	Charge        models.Amount        `json:"charge"`
	ValidatedRate models.ValidatedRate `json:"validated_rate"`
}

type PassData struct {
	PatientInfo       *models.Order    `json:"patient_info"`
	ProviderInfo      *models.Provider `json:"provider_info"`
	DateOfService     string           `json:"date_of_service"`
	LineItems         []PassLineItem   `json:"line_items"`
	ComparisonDetails json.RawMessage  `json:"comparison_details"`
}

// PassRecord is one entry of a validation_passes file.
type PassRecord struct {
	FileInfo          FileInfo    `json:"file_info"`
	ValidationSummary PassSummary `json:"validation_summary"`
	Data              PassData    `json:"data"`
}

type CommonError struct {
	ErrorCode   string `json:"error_code"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Summary is the content of a validation_summary file.
type Summary struct {
	SessionID        string        `json:"session_id"`
	Timestamp        string        `json:"timestamp"`
	TotalFiles       int           `json:"total_files"`
	PassedFiles      int           `json:"passed_files"`
	FailedFiles      int           `json:"failed_files"`
	FailureBreakdown Counts        `json:"failure_breakdown"`
	CommonErrors     []CommonError `json:"common_errors"`
}

type Count struct {
	Key   string
	Count int
}

// Counts is an ordered tally. It is written as a JSON object whose keys keep
// the slice order.
type Counts []Count

func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", kv.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counts) UnmarshalJSON(data []byte) error {
	*c = Counts{}
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var n int
		if err := dec.Decode(&n); err != nil {
			return err
		}
		*c = append(*c, Count{Key: key, Count: n})
	}
	return nil
}

// Get returns the count for key, or 0.
func (c Counts) Get(key string) int {
	for _, kv := range c {
		if kv.Key == key {
			return kv.Count
		}
	}
	return 0
}

// Counter tallies keys, remembering the order keys were first seen in.
type Counter struct {
	order  []string
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

func (c *Counter) Add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *Counter) Total() int {
	t := 0
	for _, n := range c.counts {
		t += n
	}
	return t
}

// MostCommon returns up to n entries, highest count first. Ties keep first-seen
// order. n <= 0 returns every entry.
func (c *Counter) MostCommon(n int) Counts {
	out := make(Counts, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Count{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// InOrder returns every entry in first-seen order.
func (c *Counter) InOrder() Counts {
	out := make(Counts, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Count{Key: k, Count: c.counts[k]})
	}
	return out
}
