package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// Checkout session expiry bounds enforced by Stripe.
const (
	MinSessionLifetime = 30 * time.Minute
	MaxSessionLifetime = 24 * time.Hour
)

// Metadata keys stamped on every checkout session.
const (
	MetadataOrderID       = "order_id"
	MetadataNegotiationID = "negotiation_id"
	MetadataBuyerID       = "buyer_id"
)

// CheckoutSessionParams describes a one-item payment session for an agreed
// amount.
type CheckoutSessionParams struct {
	OrderID       uuid.UUID
	NegotiationID uuid.UUID
	BuyerID       uuid.UUID
	ProductTitle  string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
}

func (p CheckoutSessionParams) validate() error {
	switch {
	case p.OrderID == uuid.Nil:
		return errors.New("order id required")
	case !p.Amount.IsPositive():
		return errors.New("amount must be positive")
	case strings.TrimSpace(p.SuccessURL) == "" || strings.TrimSpace(p.CancelURL) == "":
		return errors.New("success and cancel urls required")
	case p.ExpiresAt.IsZero():
		return errors.New("expiry required")
	}
	return nil
}

// MinorUnits converts a two-decimal amount into the provider's integer form.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// SessionExpiry clamps a desired deadline into the window Stripe accepts.
func SessionExpiry(desired, now time.Time) time.Time {
	earliest := now.Add(MinSessionLifetime)
	latest := now.Add(MaxSessionLifetime)
	if desired.Before(earliest) {
		return earliest
	}
	if desired.After(latest) {
		return latest
	}
	return desired
}

func (p CheckoutSessionParams) toStripeParams(defaultCurrency string) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	name := strings.TrimSpace(p.ProductTitle)
	if name == "" {
		name = "Name Your Price order"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.OrderID.String()),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ExpiresAt:         stripe.Int64(p.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(MinorUnits(p.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
	}
	params.AddMetadata(MetadataOrderID, p.OrderID.String())
	params.AddMetadata(MetadataNegotiationID, p.NegotiationID.String())
	params.AddMetadata(MetadataBuyerID, p.BuyerID.String())
	params.SetIdempotencyKey("nyp-checkout-" + p.OrderID.String())
	return params
}

// CreateCheckoutSession opens a hosted payment page for the agreed amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("stripe client not configured")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	params := p.toStripeParams(c.currency)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		c.logError(ctx, "stripe.checkout_session.create_failed", err)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"order_id":   p.OrderID.String(),
			"session_id": sess.ID,
		}), "stripe.checkout_session.created")
	}
	return sess, nil
}

func (c *Client) logError(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Error(ctx, msg, err)
}
