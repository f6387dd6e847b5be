package controllers

import (
	"net/http"

	"github.com/facetcraft/nyp-backend/api/middleware"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
)

func actorFromRequest(r *http.Request) (auth.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return actor, nil
}
