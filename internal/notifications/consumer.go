package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
	"github.com/facetcraft/nyp-backend/pkg/outbox/idempotency"
)

const consumerName = "nyp-notifications"

type recipientLookup interface {
	Find(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns negotiation events from the notification topic into buyer
// texts for buyers who opted in with a phone on file. Delivery problems
// never reach the negotiation engine.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	decoders     *outbox.DecoderRegistry
	recipients   recipientLookup
	sender       Sender
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, manager *idempotency.Manager, recipients PreferenceRepository, sender Sender, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if recipients == nil {
		return nil, fmt.Errorf("preference repository required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		idempotency:  manager,
		decoders:     outbox.DefaultDecoders(),
		recipients:   recipients,
		sender:       sender,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": string(eventType),
	})

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "notification.decode_envelope", err)
		return processResult{ack: true}
	}
	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "notification.decode_payload", err)
		return processResult{ack: true}
	}
	event, ok := decoded.(*outbox.NegotiationEvent)
	if !ok {
		return processResult{ack: true}
	}
	notification, ok := Render(eventType, *event)
	if !ok {
		return processResult{ack: true}
	}

	logCtx = c.logg.WithNegotiationID(logCtx, event.NegotiationID.String())
	pref, err := c.recipients.Find(ctx, notification.RecipientID)
	if err != nil {
		c.logg.Error(logCtx, "notification.recipient_lookup", err)
		return processResult{nack: true}
	}
	phone, skipped := deliverable(pref)
	if skipped != "" {
		c.logg.Debug(c.logg.WithField(logCtx, "reason", skipped), "notification.skipped")
		return processResult{ack: true}
	}
	notification.Phone = phone

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "notification.invalid_event_id", err)
		return processResult{ack: true}
	}
	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "notification.idempotency_check", err)
		return processResult{nack: true}
	}
	if already {
		return processResult{ack: true}
	}

	if err := c.sender.Send(logCtx, notification); err != nil {
		c.logg.Error(logCtx, "notification.send_failed", err)
		_ = c.idempotency.Delete(ctx, consumerName, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}
