package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Rates and totals are written to reports as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Provider is the rendering provider linked to an order. JSON names follow the
// source provider roster so downstream reports can read them unchanged.
type Provider struct {
	PrimaryKey        string `json:"PrimaryKey"`
	TIN               string `json:"TIN"`
	NPI               string `json:"NPI"`
	ProviderNetwork   string `json:"Provider Network"`
	DBAName           string `json:"DBA Name Billing Name"`
	BillingName       string `json:"Billing Name"`
	ProviderStatus    string `json:"Provider Status"`
	ProviderType      string `json:"Provider Type"`
	NeedOTA           string `json:"Need OTA"`
	Address           string `json:"Address 1 Full"`
	BillingAddress1   string `json:"Billing Address 1"`
	BillingAddress2   string `json:"Billing Address 2"`
	BillingCity       string `json:"Billing Address City"`
	BillingPostalCode string `json:"Billing Address Postal Code"`
	BillingState      string `json:"Billing Address State"`
}

type Order struct {
	OrderID     string  `json:"Order_ID"`
	ProviderID  string  `json:"provider_id"`
	BundleType  *string `json:"bundle_type"`
	PatientName string  `json:"patient_name"`
	PatientDOB  string  `json:"patient_dob"`
	Status      string  `json:"status"`
}

// OrderLine is a procedure line on the referring order.
type OrderLine struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"Order_ID"`
	DOS         string `json:"DOS"`
	CPT         string `json:"CPT"`
	Modifier    string `json:"Modifier"`
	Units       int    `json:"Units"`
	Description string `json:"Description"`
}

// PPORate is a contracted rate row.
type PPORate struct {
	RenderingState string          `json:"RenderingState"`
	TIN            string          `json:"TIN"`
	ProviderName   string          `json:"provider_name"`
	ProcCd         string          `json:"proc_cd"`
	Modifier       string          `json:"modifier"`
	ProcDesc       string          `json:"proc_desc"`
	ProcCategory   string          `json:"proc_category"`
	Rate           decimal.Decimal `json:"rate"`
}

// SourceData is the claim and reference data a result was produced from.
type SourceData struct {
	HCFA           *Claim    `json:"hcfa,omitempty"`
	DBProviderInfo *Provider `json:"db_provider_info,omitempty"`
	DBPatientInfo  *Order    `json:"db_patient_info,omitempty"`
}

// ValidationResult is one logged outcome of validating a claim file.
type ValidationResult struct {
	FileName       string          `json:"file_name"`
	Timestamp      time.Time       `json:"timestamp"`
	PatientName    string          `json:"patient_name"`
	DateOfService  string          `json:"date_of_service"`
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	ValidationType string          `json:"validation_type"`
	Details        json.RawMessage `json:"details"`
	Messages       []string        `json:"messages"`
	SourceData     SourceData      `json:"source_data"`
}

// ValidatedRate is the rate a line was priced at: an amount, the "BUNDLED"
// marker, or null when no rate was found.
type ValidatedRate struct {
	Bundled bool
	Amount  *decimal.Decimal
}

const bundledRate = "BUNDLED"

func BundledRate() ValidatedRate {
	return ValidatedRate{Bundled: true}
}

func RateOf(d decimal.Decimal) ValidatedRate {
	return ValidatedRate{Amount: &d}
}

// IsNumeric reports whether the rate carries an amount.
func (r ValidatedRate) IsNumeric() bool {
	return !r.Bundled && r.Amount != nil
}

func (r ValidatedRate) MarshalJSON() ([]byte, error) {
	switch {
	case r.Bundled:
		return json.Marshal(bundledRate)
	case r.Amount == nil:
		return []byte("null"), nil
	}
	return json.Marshal(r.Amount)
}

func (r *ValidatedRate) UnmarshalJSON(data []byte) error {
	*r = ValidatedRate{}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == bundledRate {
			r.Bundled = true
			return nil
		}
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	r.Amount = &d
	return nil
}

func (r ValidatedRate) String() string {
	switch {
	case r.Bundled:
		return bundledRate
	case r.Amount == nil:
		return ""
	}
	return r.Amount.StringFixed(2)
}
