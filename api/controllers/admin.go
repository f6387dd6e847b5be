package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/api/responses"
	"github.com/facetcraft/nyp-backend/api/validators"
	"github.com/facetcraft/nyp-backend/internal/commitments"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

type commitmentPayer interface {
	MarkPaid(ctx context.Context, input commitments.MarkPaidInput) (*models.Commitment, error)
}

type commitmentView struct {
	ID               uuid.UUID              `json:"order_id"`
	NegotiationID    uuid.UUID              `json:"negotiation_id"`
	ProductID        uuid.UUID              `json:"product_id"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Status           enums.CommitmentStatus `json:"status"`
	ExpiresAt        time.Time              `json:"expires_at"`
	PaidAt           *time.Time             `json:"paid_at,omitempty"`
	PaymentReference *string                `json:"payment_reference,omitempty"`
}

func newCommitmentView(c *models.Commitment) commitmentView {
	return commitmentView{
		ID:               c.ID,
		NegotiationID:    c.NegotiationID,
		ProductID:        c.ProductID,
		Amount:           c.AgreedAmount,
		Currency:         c.Currency,
		Status:           c.Status,
		ExpiresAt:        c.CommitExpiresAt,
		PaidAt:           c.PaidAt,
		PaymentReference: c.PaymentReference,
	}
}

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required"`
}

// AdminMarkPaid records an out-of-band payment against a commitment.
func AdminMarkPaid(svc commitmentPayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commitment service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commitmentID, err := validators.ParseUUIDParam(r, "commitmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload markPaidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commitment, err := svc.MarkPaid(r.Context(), commitments.MarkPaidInput{
			CommitmentID:     commitmentID,
			PaymentReference: payload.PaymentReference,
			Actor:            &actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCommitmentView(commitment))
	}
}
