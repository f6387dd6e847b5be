package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/api/responses"
	"github.com/facetcraft/nyp-backend/api/validators"
	"github.com/facetcraft/nyp-backend/internal/negotiations"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/pagination"
)

type openNegotiationRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Text      *string         `json:"text,omitempty"`
}

// OpenNegotiation starts a thread with the buyer's first offer.
func OpenNegotiation(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload openNegotiationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		thread, err := svc.Open(r.Context(), negotiations.OpenInput{
			Actor:     actor,
			ProductID: payload.ProductID,
			Amount:    payload.Amount,
			Text:      payload.Text,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, thread)
	}
}

// ListNegotiations returns one page of the caller's threads, most recently
// active first. Staff see every thread and may filter by ?status=. Pages are
// walked with ?limit= and the next_cursor of the previous page.
func ListNegotiations(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.NegotiationStatus.IsValid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		page, err := svc.List(r.Context(), actor, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if page.Items == nil {
			page.Items = []negotiations.Summary{}
		}
		responses.WriteSuccess(w, page)
	}
}

// GetNegotiation returns the full thread.
func GetNegotiation(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
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
		thread, err := svc.GetThread(r.Context(), negotiationID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, thread)
	}
}

type appendMessageRequest struct {
	Kind            enums.MessageKind `json:"kind" validate:"required,oneof=OFFER COUNTER ACCEPT CLOSE NOTE"`
	Amount          *decimal.Decimal  `json:"amount,omitempty"`
	Text            *string           `json:"text,omitempty"`
	AcceptMessageID *uuid.UUID        `json:"accept_message_id,omitempty"`
}

// AppendNegotiationMessage records an offer, counter, accept, close or note.
// The sender side is derived from the caller's role.
func AppendNegotiationMessage(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
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
		var payload appendMessageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		thread, err := svc.AppendMessage(r.Context(), negotiations.AppendInput{
			NegotiationID:   negotiationID,
			Actor:           actor,
			Kind:            payload.Kind,
			Amount:          payload.Amount,
			Text:            payload.Text,
			AcceptMessageID: payload.AcceptMessageID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, thread)
	}
}

// AdminProductUnavailable closes every open thread on a product.
func AdminProductUnavailable(svc negotiations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "negotiation service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		closed, err := svc.CloseForProduct(r.Context(), productID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"product_id": productID, "closed": closed})
	}
}
