package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/facetcraft/nyp-backend/pkg/config"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultDecoders registers version 1 of every event this service emits.
func DefaultDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	for _, t := range []enums.OutboxEventType{
		enums.EventNegotiationOpened,
		enums.EventNegotiationMessageAppended,
		enums.EventNegotiationAccepted,
		enums.EventNegotiationClosed,
	} {
		r.Register(t, 1, decodeInto[NegotiationEvent])
	}
	for _, t := range []enums.OutboxEventType{
		enums.EventCommitmentCreated,
		enums.EventCommitmentCheckoutStarted,
		enums.EventCommitmentPaid,
		enums.EventCommitmentReleased,
		enums.EventCommitmentPaymentReview,
	} {
		r.Register(t, 1, decodeInto[CommitmentEvent])
	}
	r.Register(enums.EventEntitlementOverrideChanged, 1, decodeInto[EntitlementOverrideEvent])
	return r
}

func decodeInto[T any](payload json.RawMessage) (interface{}, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// TopicRouter decides which Pub/Sub topic carries each event type.
type TopicRouter struct {
	topics map[enums.OutboxEventType]string
}

func NewTopicRouter(cfg config.PubSubConfig) (*TopicRouter, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	if cfg.InventoryTopic == "" {
		return nil, fmt.Errorf("inventory topic is required")
	}
	topics := map[enums.OutboxEventType]string{
		enums.EventNegotiationOpened:          cfg.NotificationTopic,
		enums.EventNegotiationMessageAppended: cfg.NotificationTopic,
		enums.EventNegotiationAccepted:        cfg.NotificationTopic,
		enums.EventNegotiationClosed:          cfg.NotificationTopic,
		enums.EventCommitmentPaymentReview:    cfg.NotificationTopic,
		enums.EventEntitlementOverrideChanged: cfg.NotificationTopic,
		enums.EventCommitmentCreated:          cfg.InventoryTopic,
		enums.EventCommitmentCheckoutStarted:  cfg.InventoryTopic,
		enums.EventCommitmentPaid:             cfg.InventoryTopic,
		enums.EventCommitmentReleased:         cfg.InventoryTopic,
	}
	return &TopicRouter{topics: topics}, nil
}

// TopicFor returns the topic for eventType or an error for unrouted types.
func (r *TopicRouter) TopicFor(eventType enums.OutboxEventType) (string, error) {
	topic, ok := r.topics[eventType]
	if !ok {
		return "", fmt.Errorf("no topic routed for %s", eventType)
	}
	return topic, nil
}
