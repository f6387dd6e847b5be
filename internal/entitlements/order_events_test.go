package entitlements

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db/dbtest"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "entitlements-test", Output: io.Discard})
}

func setOrderStatus(t *testing.T, conn *gorm.DB, buyerID uuid.UUID, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Order{}).Where("buyer_id = ?", buyerID).Update("status", status).Error)
}

func orderEvent(buyerID uuid.UUID, status enums.OrderStatus) []byte {
	return []byte(fmt.Sprintf(`{"order_id":%q,"buyer_id":%q,"status":%q}`, uuid.NewString(), buyerID, status))
}

func TestEvaluateWithoutCacheSeesOrderChanges(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	buyer := uuid.New()
	seedOrder(t, conn, buyer, "1200.00", enums.OrderStatusCompleted)

	require.True(t, svc.Evaluate(context.Background(), &buyer).UnlockedNYP)

	setOrderStatus(t, conn, buyer, enums.OrderStatusRefunded)
	got := svc.Evaluate(context.Background(), &buyer)
	assert.False(t, got.UnlockedNYP)
	assert.True(t, got.TotalSpend.IsZero())
}

func TestRefundEventRelocksCachedBuyer(t *testing.T) {
	conn := dbtest.Open(t)
	reader := NewCachedSpendReader(NewRepository(conn), newMemoryCache(), 10*time.Minute, nil)
	svc := newTestService(t, conn, reader)
	consumer := &SpendInvalidationConsumer{cache: reader, logg: quietLogger()}
	buyer := uuid.New()
	seedOrder(t, conn, buyer, "1200.00", enums.OrderStatusCompleted)

	require.True(t, svc.Evaluate(context.Background(), &buyer).UnlockedNYP)

	setOrderStatus(t, conn, buyer, enums.OrderStatusRefunded)
	require.True(t, svc.Evaluate(context.Background(), &buyer).UnlockedNYP, "cached value until the event arrives")

	require.NoError(t, consumer.Handle(context.Background(), orderEvent(buyer, enums.OrderStatusRefunded)))
	got := svc.Evaluate(context.Background(), &buyer)
	assert.False(t, got.UnlockedNYP)
	assert.True(t, got.TotalSpend.IsZero())
}

func TestCompletionEventUnlocksCachedBuyer(t *testing.T) {
	conn := dbtest.Open(t)
	reader := NewCachedSpendReader(NewRepository(conn), newMemoryCache(), 10*time.Minute, nil)
	svc := newTestService(t, conn, reader)
	consumer := &SpendInvalidationConsumer{cache: reader, logg: quietLogger()}
	buyer := uuid.New()
	seedOrder(t, conn, buyer, "400.00", enums.OrderStatusCompleted)

	require.False(t, svc.Evaluate(context.Background(), &buyer).UnlockedNYP)

	seedOrder(t, conn, buyer, "600.00", enums.OrderStatusCompleted)
	require.NoError(t, consumer.Handle(context.Background(), orderEvent(buyer, enums.OrderStatusCompleted)))

	got := svc.Evaluate(context.Background(), &buyer)
	assert.True(t, got.UnlockedNYP)
	assert.True(t, got.TotalSpend.Equal(dec("1000")))
}

type failingInvalidator struct{}

func (failingInvalidator) Invalidate(context.Context, uuid.UUID) error {
	return errors.New("redis down")
}

func TestSpendInvalidationConsumerRetriesOnCacheFailure(t *testing.T) {
	consumer := &SpendInvalidationConsumer{cache: failingInvalidator{}, logg: quietLogger()}

	err := consumer.Handle(context.Background(), orderEvent(uuid.New(), enums.OrderStatusCompleted))
	assert.Error(t, err)
}

func TestSpendInvalidationConsumerDropsMalformedEvents(t *testing.T) {
	consumer := &SpendInvalidationConsumer{cache: failingInvalidator{}, logg: quietLogger()}

	assert.NoError(t, consumer.Handle(context.Background(), []byte(`not json`)))
	assert.NoError(t, consumer.Handle(context.Background(), []byte(`{"status":"COMPLETED"}`)))
}
