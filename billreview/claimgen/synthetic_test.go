package claimgen

import (
	"encoding/json"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/ppo"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

func TestWriteClaims(t *testing.T) {
	count := 1 + rand.Intn(25)
	dir := t.TempDir()

	gen := NewGenerator(rules.Default(), "TEST-")
	paths, err := gen.WriteClaims(dir, count)
	require.NoError(t, err)
	assert.Len(t, paths, count)

	codes := make(map[string]bool)
	for _, c := range gen.codes {
		codes[c] = true
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var h models.HCFA
		require.NoError(t, json.Unmarshal(data, &h))

		assert.True(t, strings.HasPrefix(h.OrderID, "TEST-"), h.OrderID)
		assert.NotEmpty(t, models.CleanTIN(h.BillingInfo.BillingProviderTIN), h.BillingInfo.BillingProviderTIN)
		assert.Len(t, h.BillingInfo.BillingProviderNPI, 10)
		assert.Contains(t, h.PatientInfo.PatientName, ", ")
		assert.NotEmpty(t, h.PatientInfo.PatientZip)

		require.NotEmpty(t, h.ServiceLines)
		assert.LessOrEqual(t, len(h.ServiceLines), maxLines)

		var total float64
		for _, line := range h.ServiceLines {
			assert.True(t, codes[line.CPTCode], line.CPTCode)
			assert.Equal(t, h.ServiceLines[0].DateOfService, line.DateOfService)
			assert.LessOrEqual(t, len(line.Modifiers), 2)
			units := line.Units.Int(0)
			assert.True(t, units >= 1 && units <= 2, "units %d", units)
			total += line.ChargeAmount.Float()
		}
		assert.InDelta(t, total, h.BillingInfo.TotalCharge.Float(), 0.01*float64(len(h.ServiceLines)))

		claim := models.Normalize(h, data)
		assert.Equal(t, h.OrderID, claim.OrderID)
		assert.Len(t, claim.LineItems, len(h.ServiceLines))
	}
}

func TestNewGeneratorCodes(t *testing.T) {
	gen := NewGenerator(nil, "")
	assert.Equal(t, DefaultOrderPrefix, gen.OrderPrefix)

	var expected int
	for _, name := range ppo.Categories() {
		expected += len(ppo.ProceduresInCategory(name))
	}
	assert.Len(t, gen.codes, expected)
	assert.Contains(t, gen.codes, "73721")

	withRules := NewGenerator(rules.Default(), "")
	assert.GreaterOrEqual(t, len(withRules.codes), len(gen.codes))
}
