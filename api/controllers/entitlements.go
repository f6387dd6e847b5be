package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/api/middleware"
	"github.com/facetcraft/nyp-backend/api/responses"
	"github.com/facetcraft/nyp-backend/api/validators"
	"github.com/facetcraft/nyp-backend/internal/entitlements"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

type entitlementService interface {
	Evaluate(ctx context.Context, buyerID *uuid.UUID) entitlements.Entitlement
	SetOverride(ctx context.Context, input entitlements.OverrideInput) (entitlements.Entitlement, error)
}

// EntitlementsMe reports the caller's unlock progress. Anonymous callers get
// the locked default.
func EntitlementsMe(svc entitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		var buyerID *uuid.UUID
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			buyerID = &actor.UserID
		}
		responses.WriteSuccess(w, svc.Evaluate(r.Context(), buyerID))
	}
}

type entitlementOverrideRequest struct {
	OverrideEnabled *bool `json:"override_enabled" validate:"required"`
}

// AdminSetEntitlementOverride unlocks or re-locks a user regardless of spend.
func AdminSetEntitlementOverride(svc entitlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload entitlementOverrideRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SetOverride(r.Context(), entitlements.OverrideInput{
			UserID:  userID,
			Enabled: *payload.OverrideEnabled,
			ActorID: actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
