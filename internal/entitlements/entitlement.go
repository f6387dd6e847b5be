package entitlements

import (
	"github.com/shopspring/decimal"
)

// Entitlement is a buyer's derived Name-Your-Price eligibility. It is never
// persisted.
type Entitlement struct {
	TotalSpend      decimal.Decimal `json:"total_spend"`
	Threshold       decimal.Decimal `json:"threshold"`
	UnlockedNYP     bool            `json:"unlocked_nyp"`
	SpendToUnlock   decimal.Decimal `json:"spend_to_unlock"`
	OverrideEnabled bool            `json:"override_enabled"`
}

// Locked is the fail-closed entitlement used for anonymous callers and for
// any failure reading order history.
func Locked(threshold decimal.Decimal) Entitlement {
	threshold = threshold.Round(2)
	return Entitlement{
		TotalSpend:    decimal.Zero,
		Threshold:     threshold,
		UnlockedNYP:   false,
		SpendToUnlock: threshold,
	}
}

// Compute derives the entitlement of an authenticated buyer. Reaching the
// threshold exactly unlocks.
func Compute(totalSpend, threshold decimal.Decimal, override bool) Entitlement {
	totalSpend = totalSpend.Round(2)
	threshold = threshold.Round(2)

	remaining := threshold.Sub(totalSpend)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	unlocked := totalSpend.GreaterThanOrEqual(threshold)
	if override {
		unlocked = true
		remaining = decimal.Zero
	}

	return Entitlement{
		TotalSpend:      totalSpend,
		Threshold:       threshold,
		UnlockedNYP:     unlocked,
		SpendToUnlock:   remaining,
		OverrideEnabled: override,
	}
}
