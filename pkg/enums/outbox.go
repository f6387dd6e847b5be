package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateNegotiation OutboxAggregateType = "negotiation"
	AggregateCommitment  OutboxAggregateType = "commitment"
	AggregateUser        OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateNegotiation,
	AggregateCommitment,
	AggregateUser,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a state transition published through the outbox.
type OutboxEventType string

const (
	EventNegotiationOpened          OutboxEventType = "negotiation_opened"
	EventNegotiationMessageAppended OutboxEventType = "negotiation_message_appended"
	EventNegotiationAccepted        OutboxEventType = "negotiation_accepted"
	EventNegotiationClosed          OutboxEventType = "negotiation_closed"
	EventCommitmentCreated          OutboxEventType = "commitment_created"
	EventCommitmentCheckoutStarted  OutboxEventType = "commitment_checkout_started"
	EventCommitmentPaid             OutboxEventType = "commitment_paid"
	EventCommitmentReleased         OutboxEventType = "commitment_released"
	EventCommitmentPaymentReview    OutboxEventType = "commitment_payment_review"
	EventEntitlementOverrideChanged OutboxEventType = "entitlement_override_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNegotiationOpened,
	EventNegotiationMessageAppended,
	EventNegotiationAccepted,
	EventNegotiationClosed,
	EventCommitmentCreated,
	EventCommitmentCheckoutStarted,
	EventCommitmentPaid,
	EventCommitmentReleased,
	EventCommitmentPaymentReview,
	EventEntitlementOverrideChanged,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
