package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatedRateJSON(t *testing.T) {
	tests := []struct {
		name string
		rate ValidatedRate
		json string
	}{
		{"bundled", BundledRate(), `"BUNDLED"`},
		{"amount", RateOf(decimal.RequireFromString("450.5")), `450.5`},
		{"zero", RateOf(decimal.Zero), `0`},
		{"missing", ValidatedRate{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.rate)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(out))

			var back ValidatedRate
			require.NoError(t, json.Unmarshal(out, &back))
			assert.Equal(t, tt.rate.Bundled, back.Bundled)
			assert.Equal(t, tt.rate.IsNumeric(), back.IsNumeric())
			assert.Equal(t, tt.rate.String(), back.String())
		})
	}
}

func TestValidatedRateAcceptsQuotedAmounts(t *testing.T) {
	var r ValidatedRate
	require.NoError(t, json.Unmarshal([]byte(`"1200.00"`), &r))
	assert.True(t, r.IsNumeric())
	assert.Equal(t, "1200.00", r.String())

	assert.Error(t, json.Unmarshal([]byte(`"n/a"`), &r))
}
