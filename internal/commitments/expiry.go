package commitments

import (
	"time"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// CheckExpiry reports whether an unpaid commitment has reached its deadline.
// The boundary instant counts as expired.
func CheckExpiry(c models.Commitment, now time.Time) bool {
	if c.PaidAt != nil || c.Status == enums.CommitmentStatusPaid {
		return false
	}
	if c.Status == enums.CommitmentStatusExpired {
		return true
	}
	return !now.Before(c.CommitExpiresAt)
}

// EffectiveStatus resolves a stored pending status against the clock.
func EffectiveStatus(c models.Commitment, now time.Time) enums.CommitmentStatus {
	if c.Status == enums.CommitmentStatusPending && CheckExpiry(c, now) {
		return enums.CommitmentStatusExpired
	}
	return c.Status
}

// PaymentInFlight reports whether a checkout session opened for the
// commitment may still complete at the provider.
func PaymentInFlight(c models.Commitment, now time.Time) bool {
	if c.CheckoutSessionID == nil || c.CheckoutSessionExpiresAt == nil {
		return false
	}
	return now.Before(*c.CheckoutSessionExpiresAt)
}
