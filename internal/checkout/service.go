package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/internal/products"
	"github.com/facetcraft/nyp-backend/internal/purchasetokens"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	pkgstripe "github.com/facetcraft/nyp-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionCreator opens a checkout session with the payment provider.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params pkgstripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type tokenRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, token string, actor auth.Actor) (purchasetokens.Quote, error)
}

type commitmentStore interface {
	FindForUpdate(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (*models.Commitment, error)
	RecordCheckoutSession(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sessionID string, expiresAt time.Time) error
}

type Input struct {
	Actor         auth.Actor
	PurchaseToken string
	SuccessURL    string
	CancelURL     string
}

type Result struct {
	CheckoutURL string               `json:"checkout_url"`
	SessionID   string               `json:"session_id"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Quote       purchasetokens.Quote `json:"quote"`
}

// Service turns a purchase token into a provider checkout session.
type Service interface {
	Checkout(ctx context.Context, input Input) (Result, error)
}

type ServiceParams struct {
	Tokens      tokenRedeemer
	Commitments commitmentStore
	Products    products.Repository
	Sessions    SessionCreator
	Tx          txRunner
	Logger      *logger.Logger
	Clock       func() time.Time
}

type service struct {
	tokens      tokenRedeemer
	commitments commitmentStore
	products    products.Repository
	sessions    SessionCreator
	tx          txRunner
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tokens == nil {
		return nil, fmt.Errorf("token redeemer required")
	}
	if params.Commitments == nil {
		return nil, fmt.Errorf("commitment store required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session creator required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tokens:      params.Tokens,
		commitments: params.Commitments,
		products:    params.Products,
		sessions:    params.Sessions,
		tx:          params.Tx,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

// Checkout redeems the token and opens the session in one transaction. A
// provider failure rolls the redemption back so the buyer can retry. A
// session never outlives the commitment deadline, so checkout is refused
// once less than the provider's minimum session lifetime remains.
func (s *service) Checkout(ctx context.Context, input Input) (Result, error) {
	if strings.TrimSpace(input.SuccessURL) == "" || strings.TrimSpace(input.CancelURL) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "success_url and cancel_url required")
	}

	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		quote, err := s.tokens.Redeem(ctx, tx, input.PurchaseToken, input.Actor)
		if err != nil {
			return err
		}
		commitment, err := s.commitments.FindForUpdate(ctx, tx, quote.CommitmentID)
		if err != nil {
			return err
		}

		title := ""
		if product, err := s.products.WithTx(tx).FindByID(ctx, quote.ProductID); err == nil {
			title = product.Title
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}

		now := s.now().UTC()
		if commitment.CommitExpiresAt.Sub(now) < pkgstripe.MinSessionLifetime {
			return pkgerrors.New(pkgerrors.CodeTokenExpired, "agreement expires before a payment could complete").
				WithDetails(map[string]any{"expires_at": commitment.CommitExpiresAt})
		}
		expiresAt := pkgstripe.SessionExpiry(commitment.CommitExpiresAt, now)
		sess, err := s.sessions.CreateCheckoutSession(ctx, pkgstripe.CheckoutSessionParams{
			OrderID:       commitment.ID,
			NegotiationID: commitment.NegotiationID,
			BuyerID:       commitment.BuyerID,
			ProductTitle:  title,
			Amount:        quote.Amount,
			Currency:      quote.Currency,
			SuccessURL:    input.SuccessURL,
			CancelURL:     input.CancelURL,
			ExpiresAt:     expiresAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider unavailable; try again")
		}
		if sess == nil || sess.ID == "" {
			return pkgerrors.New(pkgerrors.CodeDependency, "payment provider returned no session")
		}

		if err := s.commitments.RecordCheckoutSession(ctx, tx, commitment.ID, sess.ID, expiresAt); err != nil {
			return err
		}
		result = Result{
			CheckoutURL: sess.URL,
			SessionID:   sess.ID,
			ExpiresAt:   expiresAt,
			Quote:       quote,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if s.logg != nil {
		ctx = s.logg.WithCommitmentID(ctx, result.Quote.CommitmentID.String())
		s.logg.Info(s.logg.WithField(ctx, "session_id", result.SessionID), "checkout.session_opened")
	}
	return result, nil
}
