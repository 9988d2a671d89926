package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ClaimTestSuite struct {
	suite.Suite
}

func TestClaimTestSuite(t *testing.T) {
	suite.Run(t, new(ClaimTestSuite))
}

const sampleHCFA = `{
	"patient_info": {"patient_name": "DOE, JANE", "patient_dob": "01/02/1970", "patient_zip": "75001"},
	"service_lines": [
		{"date_of_service": "03/01/2024", "cpt_code": "73721", "modifiers": ["RT", "LT"], "charge_amount": "1,250.00", "units": 1},
		{"date_of_service": "03/02/2024", "cpt_code": " 95886 ", "modifiers": [], "charge_amount": 300, "units": "2"},
		{"date_of_service": "03/02/2024", "cpt_code": "A9579", "modifiers": null}
	],
	"billing_info": {"billing_provider_tin": "12-3456789", "billing_provider_npi": "1234567890", "total_charge": "1,850.00"},
	"Order_ID": "ORD-1",
	"filemaker_number": "FM-7"
}`

func (s *ClaimTestSuite) TestNormalize() {
	var h HCFA
	s.Require().NoError(json.Unmarshal([]byte(sampleHCFA), &h))

	claim := Normalize(h, json.RawMessage(sampleHCFA))

	s.Equal("DOE, JANE", claim.PatientName)
	s.Equal("03/01/2024", claim.DateOfService)
	s.Equal("ORD-1", claim.OrderID)
	s.Equal("12-3456789", claim.BillingProviderTIN)
	s.Equal("1234567890", claim.BillingProviderNPI)
	s.Equal(Amount("1,850.00"), claim.TotalCharge)
	s.Len(claim.LineItems, 3)

	first := claim.LineItems[0]
	s.Equal("73721", first.CPT)
	s.Equal("RT,LT", first.ModifierString())
	s.Equal(1, first.Units.Int(0))
	s.Equal(1250.0, first.Charge.Float())

	second := claim.LineItems[1]
	s.Equal("95886", second.CPT)
	s.Nil(second.Modifier)
	s.Equal(2, second.Units.Int(0))
	s.Equal(Amount("300"), second.Charge)

	third := claim.LineItems[2]
	s.Nil(third.Modifier)
	s.Equal(1, third.Units.Int(0), "missing units default to 1")
	s.Equal(Amount("0.00"), third.Charge)
}

func (s *ClaimTestSuite) TestNormalizeNoServiceLines() {
	claim := Normalize(HCFA{OrderID: "ORD-2"}, nil)
	s.Equal("", claim.DateOfService)
	s.NotNil(claim.LineItems)
	s.Empty(claim.LineItems)
}

func (s *ClaimTestSuite) TestClaimJSONKeys() {
	mod := "RT"
	claim := Claim{OrderID: "ORD-1", LineItems: []LineItem{{CPT: "73721", Modifier: &mod, Units: NewFlexInt(1), Charge: "10.00"}}}
	data, err := json.Marshal(claim)
	s.Require().NoError(err)

	var generic map[string]interface{}
	s.Require().NoError(json.Unmarshal(data, &generic))
	s.Equal("ORD-1", generic["Order_ID"])
	line := generic["line_items"].([]interface{})[0].(map[string]interface{})
	s.Equal("73721", line["cpt"])
	s.Equal("RT", line["modifier"])
	s.Equal(float64(1), line["units"])
	s.NotContains(line, "bundle_type")
}

func TestCleanTIN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12-3456789", "123456789"},
		{" 123456789 ", "123456789"},
		{"123-45-6789", "123456789"},
		{"12345678", ""},
		{"1234567890", ""},
		{"12345678A", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanTIN(tt.in))
		})
	}
}

func TestSafeInt(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int
	}{
		{"int", 3, 3},
		{"float truncates", 2.9, 2},
		{"numeric string", "4", 4},
		{"float string", "1.0", 1},
		{"garbage", "abc", 0},
		{"nil", nil, 0},
		{"json number", json.Number("5"), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeInt(tt.in, 0))
		})
	}
}

func TestFlexIntKeepsUnparseableInput(t *testing.T) {
	var f FlexInt
	assert.NoError(t, json.Unmarshal([]byte(`"n/a"`), &f))
	assert.Equal(t, 7, f.Int(7))

	out, err := json.Marshal(f)
	assert.NoError(t, err)
	assert.JSONEq(t, `"n/a"`, string(out))
}

func TestAmountFloat(t *testing.T) {
	assert.Equal(t, 1234.5, Amount("$1,234.50").Float())
	assert.Equal(t, 0.0, Amount("free").Float())
	assert.Equal(t, 0.0, Amount("").Float())
}
