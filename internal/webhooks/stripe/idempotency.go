package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facetcraft/nyp-backend/pkg/redis"
)

const webhookScope = "stripe_webhook"

// IdempotencyGuard remembers which Stripe event ids were already applied to
// commitments. Test-mode and live events are tracked under separate scopes
// so a shared Redis never lets one mode mask the other.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard for one Stripe environment ("test" or
// "live"). ttl must outlast Stripe's retry window.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, environment string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	switch environment {
	case "test", "live":
	default:
		return nil, fmt.Errorf("unknown stripe environment %q", environment)
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: webhookScope + ":" + environment,
	}, nil
}

// CheckAndMark reports whether the event was seen before, marking it with
// its type when it was not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	if eventType == "" {
		eventType = "unknown"
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), eventType, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark stripe event: %w", err)
	}
	return !set, nil
}

// Release forgets the event so Stripe's next delivery is applied.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
