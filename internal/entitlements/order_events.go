package entitlements

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/logger"
)

// OrderStatusChanged is published by the order subsystem whenever an order
// moves between statuses. Only the buyer matters here.
type OrderStatusChanged struct {
	OrderID uuid.UUID         `json:"order_id"`
	BuyerID uuid.UUID         `json:"buyer_id"`
	Status  enums.OrderStatus `json:"status"`
}

// SpendInvalidationConsumer drops the cached completed spend of a buyer when
// one of their orders changes status, so completions and refunds are seen
// by the next Evaluate.
type SpendInvalidationConsumer struct {
	subscription *pubsub.Subscriber
	cache        SpendInvalidator
	logg         *logger.Logger
}

func NewSpendInvalidationConsumer(subscription *pubsub.Subscriber, cache SpendInvalidator, logg *logger.Logger) (*SpendInvalidationConsumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("order subscription required")
	}
	if cache == nil {
		return nil, fmt.Errorf("spend cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SpendInvalidationConsumer{subscription: subscription, cache: cache, logg: logg}, nil
}

// Run receives order events until the context is canceled.
func (c *SpendInvalidationConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := c.Handle(ctx, msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle invalidates the buyer named in an order event. Malformed payloads
// are dropped; a cache failure is returned so the message is redelivered.
func (c *SpendInvalidationConsumer) Handle(ctx context.Context, data []byte) error {
	var event OrderStatusChanged
	if err := json.Unmarshal(data, &event); err != nil || event.BuyerID == uuid.Nil {
		if err == nil {
			err = fmt.Errorf("buyer_id missing")
		}
		c.logg.Error(ctx, "entitlements.order_event.invalid", err)
		return nil
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"buyer_id":     event.BuyerID.String(),
		"order_id":     event.OrderID.String(),
		"order_status": string(event.Status),
	})
	if err := c.cache.Invalidate(ctx, event.BuyerID); err != nil {
		c.logg.Error(ctx, "entitlements.spend_cache.invalidate_failed", err)
		return err
	}
	c.logg.Info(ctx, "entitlements.spend_cache.invalidated")
	return nil
}
