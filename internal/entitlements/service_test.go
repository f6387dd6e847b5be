package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/db/dbtest"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
)

type stubSpend struct {
	fn func(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error)
}

func (s stubSpend) CompletedSpend(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	return s.fn(ctx, buyerID)
}

type memoryCache struct {
	values  map[string]string
	getErr  error
	gets    int
	deletes []string
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string]string{}} }

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.gets++
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
		m.deletes = append(m.deletes, k)
	}
	return nil
}

func (m *memoryCache) CacheKey(scope, id string) string { return scope + ":" + id }

func seedOrder(t *testing.T, conn *gorm.DB, buyerID uuid.UUID, total string, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Order{
		ID:      uuid.New(),
		BuyerID: buyerID,
		Total:   dec(total),
		Status:  status,
	}).Error)
}

func newTestService(t *testing.T, conn *gorm.DB, spend SpendReader) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Spend:     spend,
		Tx:        db.Wrap(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Threshold: dec("1000"),
	})
	require.NoError(t, err)
	return svc
}

func TestEvaluateSumsCompletedOrdersOnly(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	seedOrder(t, conn, buyer, "600.50", enums.OrderStatusCompleted)
	seedOrder(t, conn, buyer, "399.50", enums.OrderStatusCompleted)
	seedOrder(t, conn, buyer, "5000.00", enums.OrderStatusRefunded)
	seedOrder(t, conn, buyer, "5000.00", enums.OrderStatusPending)
	seedOrder(t, conn, uuid.New(), "5000.00", enums.OrderStatusCompleted)

	svc := newTestService(t, conn, nil)
	got := svc.Evaluate(context.Background(), &buyer)

	assert.True(t, got.TotalSpend.Equal(dec("1000")), "spend %s", got.TotalSpend)
	assert.True(t, got.UnlockedNYP)
	assert.True(t, got.SpendToUnlock.IsZero())
}

func TestEvaluateBelowThreshold(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	seedOrder(t, conn, buyer, "400.00", enums.OrderStatusCompleted)

	got := newTestService(t, conn, nil).Evaluate(context.Background(), &buyer)

	assert.False(t, got.UnlockedNYP)
	assert.True(t, got.SpendToUnlock.Equal(dec("600")))
}

func TestEvaluateAnonymousIsLocked(t *testing.T) {
	conn := dbtest.Open(t)
	got := newTestService(t, conn, nil).Evaluate(context.Background(), nil)

	assert.False(t, got.UnlockedNYP)
	assert.True(t, got.TotalSpend.IsZero())
	assert.True(t, got.SpendToUnlock.Equal(dec("1000")))
}

func TestEvaluateFailsClosedOnSpendError(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	require.NoError(t, conn.Create(&models.EntitlementOverride{UserID: buyer, Enabled: true, UpdatedAt: time.Now().UTC()}).Error)

	svc := newTestService(t, conn, stubSpend{fn: func(context.Context, uuid.UUID) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("orders unavailable")
	}})
	got := svc.Evaluate(context.Background(), &buyer)

	assert.False(t, got.UnlockedNYP)
	assert.False(t, got.OverrideEnabled)
}

func TestSetOverrideUnlocksAndEmits(t *testing.T) {
	conn := dbtest.Open(t)
	buyer := uuid.New()
	admin := uuid.New()
	svc := newTestService(t, conn, nil)

	got, err := svc.SetOverride(context.Background(), OverrideInput{UserID: buyer, Enabled: true, ActorID: admin})
	require.NoError(t, err)
	assert.True(t, got.UnlockedNYP)
	assert.True(t, got.OverrideEnabled)
	assert.True(t, got.SpendToUnlock.IsZero())

	got, err = svc.SetOverride(context.Background(), OverrideInput{UserID: buyer, Enabled: false, ActorID: admin})
	require.NoError(t, err)
	assert.False(t, got.UnlockedNYP)

	var count int64
	require.NoError(t, conn.Model(&models.EntitlementOverride{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventEntitlementOverrideChanged).Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestSetOverrideRequiresActor(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := newTestService(t, conn, nil).SetOverride(context.Background(), OverrideInput{UserID: uuid.New(), Enabled: true})
	require.Error(t, err)
}

func TestCachedSpendReaderReadsThroughAndInvalidates(t *testing.T) {
	buyer := uuid.New()
	calls := 0
	next := stubSpend{fn: func(context.Context, uuid.UUID) (decimal.Decimal, error) {
		calls++
		return dec("250.00"), nil
	}}
	cache := newMemoryCache()
	reader := NewCachedSpendReader(next, cache, time.Minute, nil)

	first, err := reader.CompletedSpend(context.Background(), buyer)
	require.NoError(t, err)
	second, err := reader.CompletedSpend(context.Background(), buyer)
	require.NoError(t, err)

	assert.True(t, first.Equal(dec("250")))
	assert.True(t, second.Equal(dec("250")))
	assert.Equal(t, 1, calls)

	require.NoError(t, reader.Invalidate(context.Background(), buyer))
	_, err = reader.CompletedSpend(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedSpendReaderBypassesBrokenCache(t *testing.T) {
	calls := 0
	next := stubSpend{fn: func(context.Context, uuid.UUID) (decimal.Decimal, error) {
		calls++
		return dec("10"), nil
	}}
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	reader := NewCachedSpendReader(next, cache, time.Minute, nil)

	got, err := reader.CompletedSpend(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("10")))
	assert.Equal(t, 1, calls)
}
