package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

type countingLimiter struct {
	counts map[string]int64
	err    error
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func TestRateLimitPerActor(t *testing.T) {
	store := &countingLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "negotiation_writes", Limit: 2, Window: time.Minute}
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(actor auth.Actor) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/negotiations", nil)
		req = req.WithContext(WithActor(req.Context(), actor))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	alice := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	bob := auth.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}
	assert.Equal(t, http.StatusCreated, send(alice))
	assert.Equal(t, http.StatusCreated, send(alice))
	assert.Equal(t, http.StatusTooManyRequests, send(alice))
	assert.Equal(t, http.StatusCreated, send(bob))
	assert.Contains(t, store.counts, "negotiation_writes:"+alice.UserID.String())
}

func TestRateLimitFallsBackToIPAndSurfacesStoreErrors(t *testing.T) {
	store := &countingLimiter{counts: map[string]int64{}}
	handler := RateLimit(RateLimitPolicy{Name: "w", Limit: 1, Window: time.Minute}, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, store.counts, "w:ip:203.0.113.9")

	store.err = errors.New("redis down")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}
