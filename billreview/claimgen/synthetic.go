package claimgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/models"
	"github.com/clarity-dx/bill-review/billreview/ppo"
	"github.com/clarity-dx/bill-review/billreview/rules"
)

// DefaultOrderPrefix is used when no order prefix is given.
const DefaultOrderPrefix = "ORD-"

const (
	dateLayout = "01/02/2006"
	maxLines   = 4
	minCharge  = 50
	maxCharge  = 2500
)

var (
	minBirthDate = time.Date(1930, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxBirthDate = time.Date(2005, time.December, 31, 0, 0, 0, 0, time.UTC)

	minServiceDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxServiceDate = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

	modifiers = []string{"RT", "LT", "26", "TC", "59"}
)

type weight float64

const (
	half    weight = 0.5
	quarter weight = 0.25
)

// Generator produces HCFA claim documents with random but well-formed values.
// Procedure codes are drawn from the bundle rules and the PPO categories.
type Generator struct {
	OrderPrefix string
	codes       []string
}

func NewGenerator(r *rules.Rules, orderPrefix string) *Generator {
	seen := make(map[string]struct{})
	var codes []string
	add := func(cs ...string) {
		for _, c := range cs {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				codes = append(codes, c)
			}
		}
	}
	if r != nil {
		add(r.Codes()...)
	}
	for _, name := range ppo.Categories() {
		add(ppo.ProceduresInCategory(name)...)
	}
	if orderPrefix == "" {
		orderPrefix = DefaultOrderPrefix
	}
	return &Generator{OrderPrefix: orderPrefix, codes: codes}
}

// Claim builds the n-th claim. Order IDs are the prefix followed by n.
func (g *Generator) Claim(n int) models.HCFA {
	dos := randomDate(minServiceDate, maxServiceDate)
	lines := make([]models.ServiceLine, 1+randomdata.Number(maxLines))

	var total float64
	for i := range lines {
		charge := randomdata.Decimal(minCharge, maxCharge, 2)
		total += charge
		lines[i] = models.ServiceLine{
			DateOfService: dos,
			CPTCode:       randomdata.StringSample(g.codes...),
			Modifiers:     randomModifiers(),
			ChargeAmount:  models.Amount(strconv.FormatFloat(charge, 'f', 2, 64)),
			Units:         models.NewFlexInt(1 + randomdata.Number(2)),
		}
	}

	return models.HCFA{
		PatientInfo: models.PatientInfo{
			PatientName: fmt.Sprintf("%s, %s", randomdata.LastName(), randomdata.FirstName(randomdata.RandomGender)),
			PatientDOB:  randomDate(minBirthDate, maxBirthDate),
			PatientZip:  randomdata.PostalCode("US"),
		},
		ServiceLines: lines,
		BillingInfo: models.BillingInfo{
			BillingProviderName: randomdata.SillyName() + " Imaging",
			BillingProviderTIN:  randomdata.StringNumberExt(1, "", 2) + "-" + randomdata.StringNumberExt(1, "", 7),
			BillingProviderNPI:  randomdata.StringNumberExt(1, "", 10),
			TotalCharge:         models.Amount(strconv.FormatFloat(total, 'f', 2, 64)),
		},
		OrderID: fmt.Sprintf("%s%06d", g.OrderPrefix, n),
	}
}

// WriteClaims writes count claims to dir as individual JSON files and
// returns their paths.
func (g *Generator) WriteClaims(dir string, count int) ([]string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}

	paths := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		claim := g.Claim(i)
		data, err := json.MarshalIndent(claim, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode claim %s: %w", claim.OrderID, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("claim_%06d.json", i))
		if err = os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write claim %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	logrus.Debugf("Generated %d synthetic claims in %s", count, dir)
	return paths, nil
}

func randomModifiers() []string {
	if chance(half) {
		return []string{}
	}
	mods := []string{randomdata.StringSample(modifiers...)}
	if chance(quarter) {
		mods = append(mods, randomdata.StringSample(modifiers...))
	}
	return mods
}

// chance is true with probability w.
func chance(w weight) bool {
	return float64(w) >= randomdata.Decimal(1)
}

func randomDate(min, max time.Time) string {
	d := randomdata.FullDateInRange(min.Format(randomdata.DateInputLayout),
		max.Format(randomdata.DateInputLayout))
	t, err := time.Parse(randomdata.DateOutputLayout, d)
	// Same layout on both sides, so this cannot fail.
	if err != nil {
		panic("cannot parse generated date " + err.Error())
	}
	return t.Format(dateLayout)
}
