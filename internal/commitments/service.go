package commitments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/metrics"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// TokenInvalidator voids any unredeemed purchase token of a commitment.
type TokenInvalidator interface {
	InvalidateForCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, at time.Time) error
}

// Service converts accepted negotiations into time-boxed payable
// commitments and resolves them on payment or expiry.
type Service interface {
	OnAccepted(ctx context.Context, tx *gorm.DB, negotiation models.Negotiation) (*models.Commitment, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Commitment, error)
	Release(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error)
	ExpireDue(ctx context.Context, limit int) (int, error)
	GetForNegotiation(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (*models.Commitment, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (*models.Commitment, error)
	RecordCheckoutSession(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sessionID string, expiresAt time.Time) error
}

// MarkPaidInput is a payment confirmation. ProviderConfirmed is set when the
// payment provider reports the charge, as opposed to a manual admin mark.
type MarkPaidInput struct {
	CommitmentID      uuid.UUID
	PaymentReference  string
	ProviderConfirmed bool
	Actor             *auth.Actor
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Tokens  TokenInvalidator
	Window  time.Duration
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	tokens  TokenInvalidator
	window  time.Duration
	metrics *metrics.EngineMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("commitments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token invalidator required")
	}
	if params.Window <= 0 {
		return nil, fmt.Errorf("commit window must be positive")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		tokens:  params.Tokens,
		window:  params.Window,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     clock,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

// OnAccepted runs inside the accepting transaction. It is keyed on the
// negotiation so a replayed accept returns the existing commitment.
func (s *service) OnAccepted(ctx context.Context, tx *gorm.DB, negotiation models.Negotiation) (*models.Commitment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if !negotiation.AgreedAmount.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accepted negotiation has no agreed amount")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByNegotiation(ctx, negotiation.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup commitment")
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock()
	commitment := &models.Commitment{
		ID:              uuid.New(),
		NegotiationID:   negotiation.ID,
		BuyerID:         negotiation.BuyerID,
		ProductID:       negotiation.ProductID,
		AgreedAmount:    negotiation.AgreedAmount.Decimal,
		Currency:        negotiation.Currency,
		Status:          enums.CommitmentStatusPending,
		CommitExpiresAt: now.Add(s.window),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.repo.WithTx(sp).Create(ctx, commitment)
	})
	if err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create commitment")
		}
		existing, findErr := repo.FindByNegotiation(ctx, negotiation.ID)
		if findErr != nil || existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, multierr.Append(err, findErr), "resolve concurrent commitment")
		}
		return existing, nil
	}

	if err := s.emit(ctx, tx, enums.EventCommitmentCreated, *commitment, nil, false); err != nil {
		return nil, err
	}
	s.metrics.ObserveCommitment(string(enums.CommitmentStatusPending))
	return commitment, nil
}

func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Commitment, error) {
	if input.CommitmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commitment id required")
	}
	reference := strings.TrimSpace(input.PaymentReference)

	var (
		result  *models.Commitment
		outcome error
		paid    bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		commitment, err := repo.FindByIDForUpdate(ctx, input.CommitmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commitment not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
		}

		now := s.clock()
		switch {
		case commitment.Status == enums.CommitmentStatusPaid || commitment.PaidAt != nil:
			return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "commitment already paid")

		case commitment.Status == enums.CommitmentStatusPaymentReview:
			result = commitment
			outcome = expiredRejected(true)
			return nil

		case CheckExpiry(*commitment, now):
			if input.ProviderConfirmed || PaymentInFlight(*commitment, now) {
				if err := s.flagForReview(ctx, tx, commitment, reference, input.Actor, now); err != nil {
					return err
				}
				result = commitment
				outcome = expiredRejected(true)
				return nil
			}
			if commitment.Status == enums.CommitmentStatusPending {
				if err := s.release(ctx, tx, commitment, now); err != nil {
					return err
				}
			}
			result = commitment
			outcome = expiredRejected(false)
			return nil
		}

		fields := map[string]any{
			"status":     enums.CommitmentStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}
		if reference != "" {
			fields["payment_reference"] = reference
		}
		ok, err := repo.UpdatePending(ctx, commitment.ID, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark commitment paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "commitment changed concurrently; refetch")
		}
		commitment.Status = enums.CommitmentStatusPaid
		commitment.PaidAt = &now
		commitment.UpdatedAt = now
		if reference != "" {
			commitment.PaymentReference = &reference
		}
		if err := s.emit(ctx, tx, enums.EventCommitmentPaid, *commitment, input.Actor, false); err != nil {
			return err
		}
		result = commitment
		paid = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if paid {
		s.metrics.ObserveCommitment(string(enums.CommitmentStatusPaid))
		s.info(ctx, result.ID, "commitment.paid")
	}
	if outcome != nil {
		return result, outcome
	}
	return result, nil
}

func (s *service) Release(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error) {
	var result *models.Commitment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		commitment, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, commitmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "commitment not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
		}

		now := s.clock()
		switch {
		case commitment.Status == enums.CommitmentStatusExpired:
			result = commitment
			return nil
		case commitment.Status != enums.CommitmentStatusPending:
			return pkgerrors.New(pkgerrors.CodeConflict, "commitment is "+string(commitment.Status)).
				WithDetails(map[string]any{"status": commitment.Status})
		case !CheckExpiry(*commitment, now):
			return pkgerrors.New(pkgerrors.CodeConflict, "commitment has not expired")
		case PaymentInFlight(*commitment, now):
			return pkgerrors.New(pkgerrors.CodeConflict, "payment in flight")
		}

		if err := s.release(ctx, tx, commitment, now); err != nil {
			return err
		}
		result = commitment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireDue releases every lapsed commitment with no payment in flight, up
// to limit rows. Individual failures do not stop the sweep.
func (s *service) ExpireDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, s.clock(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list due commitments")
	}

	released := 0
	var errs error
	for _, commitment := range due {
		if ctx.Err() != nil {
			return released, multierr.Append(errs, ctx.Err())
		}
		if _, err := s.Release(ctx, commitment.ID); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", commitment.ID, err))
			continue
		}
		released++
	}
	return released, errs
}

func (s *service) GetForNegotiation(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (*models.Commitment, error) {
	commitment, err := s.repo.FindByNegotiation(ctx, negotiationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
	}
	if commitment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "no agreement for this negotiation")
	}
	if !actor.CanView(commitment.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agreement belongs to another buyer")
	}
	commitment.Status = EffectiveStatus(*commitment, s.clock())
	return commitment, nil
}

// FindForUpdate row-locks a commitment inside the caller's transaction and
// resolves its stored status against the clock.
func (s *service) FindForUpdate(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID) (*models.Commitment, error) {
	commitment, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, commitmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commitment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load commitment")
	}
	commitment.Status = EffectiveStatus(*commitment, s.clock())
	return commitment, nil
}

func (s *service) RecordCheckoutSession(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, sessionID string, expiresAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	now := s.clock()
	expiresAt = expiresAt.UTC()
	ok, err := repo.UpdatePending(ctx, commitmentID, map[string]any{
		"checkout_session_id":         sessionID,
		"checkout_session_expires_at": expiresAt,
		"updated_at":                  now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record checkout session")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNoActiveAgreement, "commitment is no longer pending")
	}
	commitment, err := repo.FindByID(ctx, commitmentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload commitment")
	}
	return s.emit(ctx, tx, enums.EventCommitmentCheckoutStarted, *commitment, nil, false)
}

func (s *service) release(ctx context.Context, tx *gorm.DB, commitment *models.Commitment, now time.Time) error {
	ok, err := s.repo.WithTx(tx).UpdatePending(ctx, commitment.ID, map[string]any{
		"status":      enums.CommitmentStatusExpired,
		"released_at": now,
		"updated_at":  now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release commitment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "commitment changed concurrently; refetch")
	}
	if err := s.tokens.InvalidateForCommitment(ctx, tx, commitment.ID, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalidate purchase token")
	}
	commitment.Status = enums.CommitmentStatusExpired
	commitment.ReleasedAt = &now
	commitment.UpdatedAt = now
	if err := s.emit(ctx, tx, enums.EventCommitmentReleased, *commitment, nil, false); err != nil {
		return err
	}
	s.metrics.ObserveCommitment(string(enums.CommitmentStatusExpired))
	s.info(ctx, commitment.ID, "commitment.released")
	return nil
}

func (s *service) flagForReview(ctx context.Context, tx *gorm.DB, commitment *models.Commitment, reference string, actor *auth.Actor, now time.Time) error {
	fields := map[string]any{
		"status":     enums.CommitmentStatusPaymentReview,
		"updated_at": now,
	}
	if reference != "" {
		fields["payment_reference"] = reference
		commitment.PaymentReference = &reference
	}
	if err := s.repo.WithTx(tx).UpdateStatus(ctx, commitment.ID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag commitment for review")
	}
	commitment.Status = enums.CommitmentStatusPaymentReview
	commitment.UpdatedAt = now
	if err := s.emit(ctx, tx, enums.EventCommitmentPaymentReview, *commitment, actor, true); err != nil {
		return err
	}
	s.metrics.ObserveCommitment(string(enums.CommitmentStatusPaymentReview))
	if s.logg != nil {
		s.logg.Warn(s.logg.WithCommitmentID(ctx, commitment.ID.String()), "commitment.payment_after_expiry")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, c models.Commitment, actor *auth.Actor, review bool) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCommitment,
		AggregateID:   c.ID,
		Data: outbox.CommitmentEvent{
			CommitmentID:     c.ID,
			NegotiationID:    c.NegotiationID,
			BuyerID:          c.BuyerID,
			ProductID:        c.ProductID,
			Amount:           c.AgreedAmount,
			Currency:         c.Currency,
			Status:           c.Status,
			CommitExpiresAt:  c.CommitExpiresAt,
			PaymentReference: c.PaymentReference,
			ReviewRequired:   review,
		},
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) info(ctx context.Context, commitmentID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithCommitmentID(ctx, commitmentID.String()), msg)
}

func expiredRejected(review bool) error {
	message := "commitment expired; negotiate again to purchase"
	if review {
		message = "payment arrived after the commitment expired; held for manual review"
	}
	return pkgerrors.New(pkgerrors.CodeExpiredRejected, message).
		WithDetails(map[string]any{"review_required": review})
}
