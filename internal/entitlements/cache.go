package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/redis"
)

const spendCacheScope = "nyp_spend"

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

// CachedSpendReader is a read-through redis cache in front of a SpendReader.
// Cache failures are logged and bypassed; they never change the answer.
type CachedSpendReader struct {
	next  SpendReader
	store cacheStore
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCachedSpendReader(next SpendReader, store cacheStore, ttl time.Duration, logg *logger.Logger) *CachedSpendReader {
	return &CachedSpendReader{next: next, store: store, ttl: ttl, logg: logg}
}

func (c *CachedSpendReader) CompletedSpend(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	key := c.store.CacheKey(spendCacheScope, buyerID.String())

	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if value, parseErr := decimal.NewFromString(cached); parseErr == nil {
			return value, nil
		}
	case !redis.IsMiss(err):
		c.warn(ctx, "entitlements.spend_cache.read_failed", err)
	}

	spend, err := c.next.CompletedSpend(ctx, buyerID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.store.Set(ctx, key, spend.String(), c.ttl); err != nil {
		c.warn(ctx, "entitlements.spend_cache.write_failed", err)
	}
	return spend, nil
}

// Invalidate drops the cached spend; call it whenever an order completes.
func (c *CachedSpendReader) Invalidate(ctx context.Context, buyerID uuid.UUID) error {
	return c.store.Del(ctx, c.store.CacheKey(spendCacheScope, buyerID.String()))
}

func (c *CachedSpendReader) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
}
