package validation

import (
	"strings"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/models"
)

type InvalidModifier struct {
	CPT      string `json:"cpt"`
	Modifier string `json:"modifier"`
}

type ModifierDetails struct {
	TotalChecked int `json:"total_checked"`
	TotalInvalid int `json:"total_invalid"`
}

type ModifierResult struct {
	Status           string            `json:"status"`
	InvalidModifiers []InvalidModifier `json:"invalid_modifiers"`
	Details          ModifierDetails   `json:"details"`
}

// ModifierValidator rejects professional (26) and technical (TC) component modifiers.
type ModifierValidator struct{}

func (ModifierValidator) Validate(claim models.Claim) ModifierResult {
	invalid := []InvalidModifier{}
	for _, line := range claim.LineItems {
		modifier := line.ModifierString()
		if modifier == "" {
			continue
		}
		upper := strings.ToUpper(modifier)
		for _, inv := range constants.InvalidModifiers {
			if strings.Contains(upper, inv) {
				invalid = append(invalid, InvalidModifier{CPT: line.CPT, Modifier: modifier})
				break
			}
		}
	}

	status := constants.StatusPass
	if len(invalid) > 0 {
		status = constants.StatusFail
	}

	return ModifierResult{
		Status:           status,
		InvalidModifiers: invalid,
		Details: ModifierDetails{
			TotalChecked: len(claim.LineItems),
			TotalInvalid: len(invalid),
		},
	}
}
