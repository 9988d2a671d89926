package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// HCFA is a claim document as extracted from a CMS-1500 form.
type HCFA struct {
	PatientInfo     PatientInfo   `json:"patient_info"`
	ServiceLines    []ServiceLine `json:"service_lines"`
	BillingInfo     BillingInfo   `json:"billing_info"`
	OrderID         string        `json:"Order_ID"`
	FilemakerNumber string        `json:"filemaker_number,omitempty"`
}

type PatientInfo struct {
	PatientName string `json:"patient_name"`
	PatientDOB  string `json:"patient_dob,omitempty"`
	PatientZip  string `json:"patient_zip,omitempty"`
}

type ServiceLine struct {
	DateOfService    string   `json:"date_of_service"`
	PlaceOfService   string   `json:"place_of_service,omitempty"`
	CPTCode          string   `json:"cpt_code"`
	Modifiers        []string `json:"modifiers"`
	DiagnosisPointer string   `json:"diagnosis_pointer,omitempty"`
	ChargeAmount     Amount   `json:"charge_amount"`
	Units            FlexInt  `json:"units"`
}

type BillingInfo struct {
	BillingProviderName    string `json:"billing_provider_name,omitempty"`
	BillingProviderAddress string `json:"billing_provider_address,omitempty"`
	BillingProviderTIN     string `json:"billing_provider_tin"`
	BillingProviderNPI     string `json:"billing_provider_npi"`
	TotalCharge            Amount `json:"total_charge"`
	PatientAccountNo       string `json:"patient_account_no,omitempty"`
}

// Claim is the normalized form of an HCFA document consumed by the validators.
type Claim struct {
	PatientName        string          `json:"patient_name"`
	DateOfService      string          `json:"date_of_service"`
	OrderID            string          `json:"Order_ID"`
	LineItems          []LineItem      `json:"line_items"`
	BillingProviderTIN string          `json:"billing_provider_tin"`
	BillingProviderNPI string          `json:"billing_provider_npi"`
	TotalCharge        Amount          `json:"total_charge"`
	RawData            json.RawMessage `json:"raw_data,omitempty"`
}

type LineItem struct {
	CPT        string  `json:"cpt"`
	Modifier   *string `json:"modifier"`
	Units      FlexInt `json:"units"`
	Charge     Amount  `json:"charge"`
	BundleType string  `json:"bundle_type,omitempty"`
}

// ModifierString returns the modifier or "" when the line has none.
func (l LineItem) ModifierString() string {
	if l.Modifier == nil {
		return ""
	}
	return *l.Modifier
}

// Normalize converts a raw HCFA document into a Claim. raw is kept verbatim on the result.
func Normalize(h HCFA, raw json.RawMessage) Claim {
	claim := Claim{
		PatientName:        h.PatientInfo.PatientName,
		OrderID:            h.OrderID,
		BillingProviderTIN: h.BillingInfo.BillingProviderTIN,
		BillingProviderNPI: h.BillingInfo.BillingProviderNPI,
		TotalCharge:        h.BillingInfo.TotalCharge,
		RawData:            raw,
		LineItems:          make([]LineItem, 0, len(h.ServiceLines)),
	}
	if len(h.ServiceLines) > 0 {
		claim.DateOfService = h.ServiceLines[0].DateOfService
	}

	for _, line := range h.ServiceLines {
		item := LineItem{
			CPT:    strings.TrimSpace(line.CPTCode),
			Units:  line.Units,
			Charge: line.ChargeAmount,
		}
		if !line.Units.set {
			item.Units = NewFlexInt(1)
		}
		if item.Charge == "" {
			item.Charge = "0.00"
		}
		if len(line.Modifiers) > 0 {
			mod := strings.Join(line.Modifiers, ",")
			item.Modifier = &mod
		}
		claim.LineItems = append(claim.LineItems, item)
	}

	return claim
}

// CleanTIN strips dashes and surrounding whitespace. The result must be exactly
// nine digits, otherwise "" is returned.
func CleanTIN(tin string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(tin, "-", ""))
	if len(cleaned) != 9 {
		return ""
	}
	for _, c := range cleaned {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return cleaned
}

// SafeInt converts ints, floats and numeric strings to an int, truncating toward zero.
// Anything else yields def.
func SafeInt(v interface{}, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return int(t)
	case json.Number:
		return SafeInt(string(t), def)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return SafeInt(f, def)
	case FlexInt:
		if !t.set {
			return def
		}
		return t.value
	}
	return def
}

// FlexInt decodes a JSON number or numeric string. Unparseable input decodes as unset.
type FlexInt struct {
	value int
	set   bool
	raw   json.RawMessage
}

func NewFlexInt(v int) FlexInt {
	return FlexInt{value: v, set: true}
}

// Int returns the parsed value or def when the input was missing or not numeric.
func (f FlexInt) Int(def int) int {
	if !f.set {
		return def
	}
	return f.value
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	f.raw = append(f.raw[:0], data...)
	f.set = false

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil || v == nil {
		return nil
	}
	const sentinel = math.MinInt32
	if n := SafeInt(v, sentinel); n != sentinel {
		f.value, f.set = n, true
	}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if f.set {
		return []byte(strconv.Itoa(f.value)), nil
	}
	if len(f.raw) > 0 {
		return f.raw, nil
	}
	return []byte("null"), nil
}

// Amount is a money value as it appears on the claim, e.g. "1,250.00". Numbers are accepted and kept as text.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*a = Amount(t)
	case float64:
		*a = Amount(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*a = ""
	}
	return nil
}

// Float parses the amount, ignoring thousands separators. Unparseable amounts are 0.
func (a Amount) Float() float64 {
	s := strings.ReplaceAll(strings.TrimSpace(string(a)), ",", "")
	s = strings.TrimPrefix(s, "$")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
