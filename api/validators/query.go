package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
)

// ParseUUIDParam reads a chi path parameter as a UUID.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid path parameter").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// ParseQueryEnum returns nil when the parameter is absent and a validation
// error when it is not accepted by valid.
func ParseQueryEnum[T ~string](r *http.Request, key string, valid func(T) bool) (*T, error) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(key)))
	if raw == "" {
		return nil, nil
	}
	value := T(raw)
	if !valid(value) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").WithDetails(map[string]any{"field": key, "value": raw})
	}
	return &value, nil
}

// ParseQueryInt returns defaultVal when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
