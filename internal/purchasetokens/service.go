package purchasetokens

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Quote is what a valid token is worth at checkout.
type Quote struct {
	CommitmentID  uuid.UUID       `json:"order_id"`
	NegotiationID uuid.UUID       `json:"negotiation_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Agreement is the buyer-facing view of an accepted negotiation.
type Agreement struct {
	Available     bool                   `json:"available"`
	PurchaseToken *string                `json:"purchase_token,omitempty"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	ExpiresAt     time.Time              `json:"expires_at"`
	OrderID       uuid.UUID              `json:"order_id"`
	NegotiationID uuid.UUID              `json:"negotiation_id"`
	Status        enums.CommitmentStatus `json:"status"`
}

type Service interface {
	IssueToken(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (string, *models.Commitment, error)
	Agreement(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (Agreement, error)
	Quote(ctx context.Context, token string, actor auth.Actor) (Quote, error)
	// Redeem consumes the token inside the caller's transaction.
	Redeem(ctx context.Context, tx *gorm.DB, token string, actor auth.Actor) (Quote, error)
}

type ServiceParams struct {
	Repo        Repository
	Commitments commitments.Repository
	Tx          txRunner
	Signer      *Signer
	Metrics     *metrics.EngineMetrics
	Logger      *logger.Logger
	Clock       func() time.Time
}

type service struct {
	repo        Repository
	commitments commitments.Repository
	tx          txRunner
	signer      *Signer
	metrics     *metrics.EngineMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchase token repository required")
	}
	if params.Commitments == nil {
		return nil, fmt.Errorf("commitments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("token signer required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:        params.Repo,
		commitments: params.Commitments,
		tx:          params.Tx,
		signer:      params.Signer,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

func (s *service) IssueToken(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (string, *models.Commitment, error) {
	var (
		token      string
		commitment *models.Commitment
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		commitment, err = s.loadAgreement(ctx, tx, negotiationID, actor)
		if err != nil {
			return err
		}
		if actor.UserID != commitment.BuyerID {
			// Staff can inspect an agreement but never hold its token.
			return pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "purchase tokens are issued to the buyer only")
		}
		now := s.clock()
		switch {
		case commitment.Status == enums.CommitmentStatusPaid || commitment.PaidAt != nil:
			return pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "agreement already paid")
		case commitments.CheckExpiry(*commitment, now) || commitment.Status != enums.CommitmentStatusPending:
			return tokenExpired(commitment)
		}

		token = s.signer.Token(commitment.ID)
		return s.ensureRow(ctx, tx, commitment, token, now)
	})
	s.metrics.ObserveToken("issue", outcomeOf(err))
	if err != nil {
		return "", nil, err
	}
	return token, commitment, nil
}

// Agreement issues the purchase token on first call and returns the same
// token afterwards, so callers reach it through a write route.
func (s *service) Agreement(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (Agreement, error) {
	token, commitment, err := s.IssueToken(ctx, negotiationID, actor)
	if err == nil {
		return agreementFrom(commitment, &token), nil
	}
	// Paid or checkout-in-progress agreements are still worth showing.
	if !pkgerrors.HasCode(err, pkgerrors.CodeNoActiveAgreement) {
		return Agreement{}, err
	}
	var view *models.Commitment
	readErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var loadErr error
		view, loadErr = s.loadAgreement(ctx, tx, negotiationID, actor)
		return loadErr
	})
	if readErr != nil {
		return Agreement{}, readErr
	}
	return agreementFrom(view, nil), nil
}

func (s *service) Quote(ctx context.Context, token string, actor auth.Actor) (Quote, error) {
	var quote Quote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, commitment, err := s.verify(ctx, tx, token, actor)
		if err != nil {
			return err
		}
		quote = quoteFrom(commitment)
		return nil
	})
	s.metrics.ObserveToken("quote", outcomeOf(err))
	return quote, err
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, token string, actor auth.Actor) (Quote, error) {
	quote, err := s.redeem(ctx, tx, token, actor)
	s.metrics.ObserveToken("redeem", outcomeOf(err))
	return quote, err
}

func (s *service) redeem(ctx context.Context, tx *gorm.DB, token string, actor auth.Actor) (Quote, error) {
	if tx == nil {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	row, commitment, err := s.verify(ctx, tx, token, actor)
	if err != nil {
		return Quote{}, err
	}
	ok, err := s.repo.WithTx(tx).MarkRedeemed(ctx, row.ID, s.clock())
	if err != nil {
		return Quote{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeem purchase token")
	}
	if !ok {
		return Quote{}, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token already used")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithCommitmentID(ctx, commitment.ID.String()), "purchase_token.redeemed")
	}
	return quoteFrom(commitment), nil
}

// verify checks a token against server state without consuming it.
func (s *service) verify(ctx context.Context, tx *gorm.DB, token string, actor auth.Actor) (*models.PurchaseToken, *models.Commitment, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token required")
	}
	row, err := s.repo.WithTx(tx).FindByHash(ctx, HashToken(token))
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup purchase token")
	}
	if row == nil || row.BuyerID != actor.UserID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "unknown purchase token")
	}
	if row.RedeemedAt != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token already used")
	}

	commitment, err := s.commitments.WithTx(tx).FindByID(ctx, row.CommitmentID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
	}
	now := s.clock()
	if commitments.CheckExpiry(*commitment, now) || !now.Before(row.ExpiresAt) {
		return nil, nil, tokenExpired(commitment)
	}
	if row.InvalidatedAt != nil || commitment.Status != enums.CommitmentStatusPending {
		return nil, nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token no longer valid")
	}
	if !row.Amount.Equal(commitment.AgreedAmount) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "purchase token does not match the agreement")
	}
	return row, commitment, nil
}

func (s *service) loadAgreement(ctx context.Context, tx *gorm.DB, negotiationID uuid.UUID, actor auth.Actor) (*models.Commitment, error) {
	commitment, err := s.commitments.WithTx(tx).FindByNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
	}
	if commitment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "no agreement for this negotiation")
	}
	if !actor.CanView(commitment.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agreement belongs to another buyer")
	}
	return commitment, nil
}

func (s *service) ensureRow(ctx context.Context, tx *gorm.DB, commitment *models.Commitment, token string, now time.Time) error {
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByCommitment(ctx, commitment.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup purchase token")
	}
	if existing != nil {
		return checkReusable(existing, commitment)
	}

	row := &models.PurchaseToken{
		ID:            uuid.New(),
		CommitmentID:  commitment.ID,
		NegotiationID: commitment.NegotiationID,
		BuyerID:       commitment.BuyerID,
		Amount:        commitment.AgreedAmount,
		TokenHash:     HashToken(token),
		ExpiresAt:     commitment.CommitExpiresAt,
		CreatedAt:     now,
	}
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.repo.WithTx(sp).Create(ctx, row)
	})
	if err == nil {
		return nil
	}
	if !db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store purchase token")
	}
	existing, err = repo.FindByCommitment(ctx, commitment.ID)
	if err != nil || existing == nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "purchase token issued concurrently; retry")
	}
	return checkReusable(existing, commitment)
}

func checkReusable(existing *models.PurchaseToken, commitment *models.Commitment) error {
	switch {
	case existing.RedeemedAt != nil:
		return pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "purchase token already redeemed; checkout in progress")
	case existing.InvalidatedAt != nil:
		return tokenExpired(commitment)
	}
	return nil
}

func agreementFrom(c *models.Commitment, token *string) Agreement {
	return Agreement{
		Available:     token != nil,
		PurchaseToken: token,
		Amount:        c.AgreedAmount,
		Currency:      c.Currency,
		ExpiresAt:     c.CommitExpiresAt,
		OrderID:       c.ID,
		NegotiationID: c.NegotiationID,
		Status:        c.Status,
	}
}

func quoteFrom(c *models.Commitment) Quote {
	return Quote{
		CommitmentID:  c.ID,
		NegotiationID: c.NegotiationID,
		ProductID:     c.ProductID,
		Amount:        c.AgreedAmount,
		Currency:      c.Currency,
		ExpiresAt:     c.CommitExpiresAt,
	}
}

func tokenExpired(c *models.Commitment) error {
	return pkgerrors.New(pkgerrors.CodeTokenExpired, "agreement expired; negotiate again to purchase").
		WithDetails(map[string]any{"order_id": c.ID, "expired_at": c.CommitExpiresAt})
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
