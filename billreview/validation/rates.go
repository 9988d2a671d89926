package validation

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
)

// Where a line's validated rate came from.
const (
	RateSourceBundle    = "bundle"
	RateSourceAncillary = "ancillary"
	RateSourcePPO       = "ppo"
	RateSourceOTA       = "ota"
)

type RateLine struct {
	models.LineItem
	ValidatedRate models.ValidatedRate `json:"validated_rate"`
	AdjustedRate  *decimal.Decimal     `json:"adjusted_rate"`
	RateSource    string               `json:"rate_source,omitempty"`
	Status        string               `json:"status"`
}

type RateResult struct {
	Status            string           `json:"status"`
	Reason            string           `json:"reason,omitempty"`
	Results           []RateLine       `json:"results"`
	TotalRate         decimal.Decimal  `json:"total_rate"`
	TotalAdjustedRate decimal.Decimal  `json:"total_adjusted_rate"`
	PassCount         int              `json:"pass_count"`
	FailCount         int              `json:"fail_count"`
	Messages          []string         `json:"messages"`
	ProviderDetails   *models.Provider `json:"provider_details,omitempty"`
}

// RateValidator prices each claim line from, in order: the bundle, the
// ancillary category, the provider's PPO contract, and the order's OTA.
type RateValidator struct {
	repo       models.RateRepository
	providers  models.OrderRepository
	categories Categories
	printer    *message.Printer
	logger     logrus.FieldLogger
}

func NewRateValidator(repo models.Repository, categories Categories, logger logrus.FieldLogger) *RateValidator {
	return &RateValidator{
		repo:       repo,
		providers:  repo,
		categories: categories,
		printer:    message.NewPrinter(language.AmericanEnglish),
		logger:     logger,
	}
}

func (v *RateValidator) Validate(ctx context.Context, lines []models.LineItem, orderID string) (RateResult, error) {
	provider, err := v.providers.GetProviderDetails(ctx, orderID)
	if err != nil {
		return RateResult{}, errors.Wrapf(err, "failed to load provider for order %s", orderID)
	}
	if provider == nil {
		return RateResult{
			Status:   constants.StatusFail,
			Reason:   "Provider details not found",
			Results:  []RateLine{},
			Messages: []string{fmt.Sprintf("Provider details not found for order %s", orderID)},
		}, nil
	}

	tin := models.CleanTIN(provider.TIN)
	result := RateResult{
		Results:         make([]RateLine, 0, len(lines)),
		TotalRate:       decimal.Zero,
		ProviderDetails: provider,
	}

	for _, line := range lines {
		rl, err := v.priceLine(ctx, line, tin, orderID)
		if err != nil {
			return RateResult{}, err
		}

		if rl.ValidatedRate.IsNumeric() {
			units := decimal.NewFromInt(int64(minUnits(line)))
			adjusted := rl.ValidatedRate.Amount.Mul(units)
			rl.AdjustedRate = &adjusted
			result.TotalRate = result.TotalRate.Add(*rl.ValidatedRate.Amount)
			result.TotalAdjustedRate = result.TotalAdjustedRate.Add(adjusted)
		}

		if rl.Status == constants.StatusPass {
			result.PassCount++
		} else {
			result.FailCount++
			result.Messages = append(result.Messages, fmt.Sprintf("No rate found for CPT %s (TIN %s, network %s)",
				line.CPT, orNone(tin), orNone(provider.ProviderNetwork)))
		}
		result.Results = append(result.Results, rl)
	}

	switch {
	case result.FailCount == 0:
		result.Status = constants.StatusPass
	case result.PassCount == 0:
		result.Status = constants.StatusFail
	default:
		result.Status = constants.StatusPartial
	}

	summary := v.printer.Sprintf("%d of %d line items priced, total %s", result.PassCount, len(lines),
		v.money(result.TotalAdjustedRate))
	result.Messages = append([]string{summary}, result.Messages...)

	v.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"status":     result.Status,
		"pass_count": result.PassCount,
		"fail_count": result.FailCount,
	}).Debug("Rate validation complete")

	return result, nil
}

func (v *RateValidator) priceLine(ctx context.Context, line models.LineItem, tin, orderID string) (RateLine, error) {
	rl := RateLine{LineItem: line, Status: constants.StatusPass}

	if line.BundleType != "" {
		rl.ValidatedRate = models.BundledRate()
		rl.RateSource = RateSourceBundle
		return rl, nil
	}

	if v.categories.IsAncillary(line.CPT) {
		rl.ValidatedRate = models.RateOf(decimal.Zero)
		rl.RateSource = RateSourceAncillary
		return rl, nil
	}

	if tin != "" {
		rate, err := v.repo.GetPPORate(ctx, tin, line.CPT)
		if err != nil {
			return rl, errors.Wrapf(err, "failed to look up PPO rate for %s", line.CPT)
		}
		if rate != nil {
			rl.ValidatedRate = models.RateOf(*rate)
			rl.RateSource = RateSourcePPO
			return rl, nil
		}
	}

	rate, err := v.repo.GetOTARate(ctx, orderID, line.CPT)
	if err != nil {
		return rl, errors.Wrapf(err, "failed to look up OTA rate for %s", line.CPT)
	}
	if rate != nil {
		rl.ValidatedRate = models.RateOf(*rate)
		rl.RateSource = RateSourceOTA
		return rl, nil
	}

	rl.Status = constants.StatusFail
	return rl, nil
}

func (v *RateValidator) money(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return v.printer.Sprintf("$%.2f", f)
}

func minUnits(line models.LineItem) int {
	if units := models.SafeInt(line.Units, 1); units > 1 {
		return units
	}
	return 1
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
