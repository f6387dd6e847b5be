package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	pkgstripe "github.com/facetcraft/nyp-backend/pkg/stripe"
)

type commitmentResolver interface {
	MarkPaid(ctx context.Context, input commitments.MarkPaidInput) (*models.Commitment, error)
	Release(ctx context.Context, commitmentID uuid.UUID) (*models.Commitment, error)
}

type ServiceParams struct {
	Commitments commitmentResolver
	Logger      *logger.Logger
}

// Service applies checkout session events to commitments.
type Service struct {
	commitments commitmentResolver
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Commitments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commitment service required")
	}
	return &Service{
		commitments: params.Commitments,
		logg:        params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, commitmentID, err := decodeSession(event)
		if err != nil {
			return err
		}
		if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed payment methods confirm through async_payment_succeeded
			return nil
		}
		return s.markPaid(ctx, commitmentID, sess.ID)
	case stripe.EventTypeCheckoutSessionExpired:
		_, commitmentID, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.release(ctx, commitmentID)
	default:
		return nil
	}
}

func (s *Service) markPaid(ctx context.Context, commitmentID uuid.UUID, sessionID string) error {
	ctx = s.withCommitment(ctx, commitmentID)
	_, err := s.commitments.MarkPaid(ctx, commitments.MarkPaidInput{
		CommitmentID:      commitmentID,
		PaymentReference:  sessionID,
		ProviderConfirmed: true,
	})
	switch {
	case err == nil:
		s.info(ctx, "stripe.checkout.paid")
		return nil
	case pkgerrors.HasCode(err, pkgerrors.CodeAlreadyPaid):
		return nil
	case pkgerrors.HasCode(err, pkgerrors.CodeExpiredRejected):
		// Held for review; redelivery would not change the outcome.
		if s.logg != nil {
			s.logg.Warn(ctx, "stripe.checkout.paid_after_expiry")
		}
		return nil
	default:
		return err
	}
}

// release frees a commitment whose checkout session lapsed unpaid. A
// commitment still inside its window stays pending for another attempt.
func (s *Service) release(ctx context.Context, commitmentID uuid.UUID) error {
	ctx = s.withCommitment(ctx, commitmentID)
	_, err := s.commitments.Release(ctx, commitmentID)
	switch {
	case err == nil:
		s.info(ctx, "stripe.checkout.session_expired")
		return nil
	case pkgerrors.HasCode(err, pkgerrors.CodeConflict), pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		return nil
	default:
		return err
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, uuid.UUID, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	reference := strings.TrimSpace(sess.ClientReferenceID)
	if reference == "" {
		reference = sess.Metadata[pkgstripe.MetadataOrderID]
	}
	commitmentID, err := uuid.Parse(reference)
	if err != nil {
		return nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session has no order reference")
	}
	return &sess, commitmentID, nil
}

func (s *Service) withCommitment(ctx context.Context, id uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithCommitmentID(ctx, id.String())
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
