package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/api/responses"
	"github.com/facetcraft/nyp-backend/api/validators"
	"github.com/facetcraft/nyp-backend/internal/checkout"
	"github.com/facetcraft/nyp-backend/internal/purchasetokens"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

type purchaseTokenService interface {
	Agreement(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (purchasetokens.Agreement, error)
	Quote(ctx context.Context, token string, actor auth.Actor) (purchasetokens.Quote, error)
}

// NegotiationAgreement returns the payable agreement for an accepted thread.
func NegotiationAgreement(svc purchaseTokenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase token service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		negotiationID, err := validators.ParseUUIDParam(r, "negotiationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agreement, err := svc.Agreement(r.Context(), negotiationID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, agreement)
	}
}

type quoteRequest struct {
	PurchaseToken string `json:"purchase_token" validate:"required"`
}

// PurchaseQuote verifies a token without consuming it.
func PurchaseQuote(svc purchaseTokenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase token service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quote, err := svc.Quote(r.Context(), payload.PurchaseToken, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

type checkoutRequest struct {
	PurchaseToken string `json:"purchase_token" validate:"required"`
	SuccessURL    string `json:"success_url" validate:"required,url"`
	CancelURL     string `json:"cancel_url" validate:"required,url"`
}

// PurchaseCheckout redeems the token and opens a provider checkout session.
func PurchaseCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Checkout(r.Context(), checkout.Input{
			Actor:         actor,
			PurchaseToken: payload.PurchaseToken,
			SuccessURL:    payload.SuccessURL,
			CancelURL:     payload.CancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
