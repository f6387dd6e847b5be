package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// NegotiationEvent is the data of every negotiation_* event.
type NegotiationEvent struct {
	NegotiationID uuid.UUID               `json:"negotiationId"`
	ProductID     uuid.UUID               `json:"productId"`
	BuyerID       uuid.UUID               `json:"buyerId"`
	ProductTitle  string                  `json:"productTitle"`
	Status        enums.NegotiationStatus `json:"status"`
	Kind          enums.MessageKind       `json:"kind,omitempty"`
	SenderRole    enums.SenderRole        `json:"senderRole,omitempty"`
	Seq           int                     `json:"seq,omitempty"`
	Amount        *decimal.Decimal        `json:"amount,omitempty"`
	ClosedReason  *enums.ClosedReason     `json:"closedReason,omitempty"`
}

// CommitmentEvent is the data of every commitment_* event.
type CommitmentEvent struct {
	CommitmentID     uuid.UUID              `json:"commitmentId"`
	NegotiationID    uuid.UUID              `json:"negotiationId"`
	BuyerID          uuid.UUID              `json:"buyerId"`
	ProductID        uuid.UUID              `json:"productId"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Status           enums.CommitmentStatus `json:"status"`
	CommitExpiresAt  time.Time              `json:"commitExpiresAt"`
	PaymentReference *string                `json:"paymentReference,omitempty"`
	ReviewRequired   bool                   `json:"reviewRequired,omitempty"`
}

// EntitlementOverrideEvent records an admin unlock change.
type EntitlementOverrideEvent struct {
	UserID  uuid.UUID `json:"userId"`
	Enabled bool      `json:"enabled"`
}
