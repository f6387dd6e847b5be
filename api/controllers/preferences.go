package controllers

import (
	"net/http"
	"strings"

	"github.com/facetcraft/nyp-backend/api/responses"
	"github.com/facetcraft/nyp-backend/api/validators"
	"github.com/facetcraft/nyp-backend/internal/notifications"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

type preferencesRequest struct {
	SMSNegotiationsEnabled *bool   `json:"sms_negotiations_enabled"`
	PhoneE164              *string `json:"phone_e164"`
}

// GetNotificationPreferences returns the caller's negotiation text settings.
func GetNotificationPreferences(svc notifications.PreferenceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preference service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		prefs, err := svc.Get(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prefs)
	}
}

// UpdateNotificationPreferences opts the caller in or out of negotiation
// texts. An empty phone_e164 removes the stored number.
func UpdateNotificationPreferences(svc notifications.PreferenceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "preference service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload preferencesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.PhoneE164 != nil {
			if phone := strings.TrimSpace(*payload.PhoneE164); phone != "" {
				if err := validators.ValidateVar("phone_e164", phone, "e164"); err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
			}
		}
		prefs, err := svc.Update(r.Context(), actor.UserID, notifications.PreferencesUpdate{
			SMSNegotiationsEnabled: payload.SMSNegotiationsEnabled,
			PhoneE164:              payload.PhoneE164,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prefs)
	}
}
