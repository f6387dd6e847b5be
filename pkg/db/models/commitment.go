package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Commitment is the pending order created when a negotiation is accepted.
// Its ID doubles as the order reference handed to checkout.
type Commitment struct {
	ID                       uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	NegotiationID            uuid.UUID              `gorm:"column:negotiation_id;type:uuid;not null;uniqueIndex"`
	BuyerID                  uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null"`
	ProductID                uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	AgreedAmount             decimal.Decimal        `gorm:"column:agreed_amount;type:numeric(12,2);not null"`
	Currency                 string                 `gorm:"column:currency;not null"`
	Status                   enums.CommitmentStatus `gorm:"column:status;not null"`
	CommitExpiresAt          time.Time              `gorm:"column:commit_expires_at;not null"`
	PaidAt                   *time.Time             `gorm:"column:paid_at"`
	ReleasedAt               *time.Time             `gorm:"column:released_at"`
	PaymentReference         *string                `gorm:"column:payment_reference"`
	CheckoutSessionID        *string                `gorm:"column:checkout_session_id"`
	CheckoutSessionExpiresAt *time.Time             `gorm:"column:checkout_session_expires_at"`
	CreatedAt                time.Time              `gorm:"column:created_at;not null"`
	UpdatedAt                time.Time              `gorm:"column:updated_at;not null"`
}

func (Commitment) TableName() string { return "commitments" }

// PurchaseToken stores only the hash of the opaque token.
type PurchaseToken struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CommitmentID  uuid.UUID       `gorm:"column:commitment_id;type:uuid;not null"`
	NegotiationID uuid.UUID       `gorm:"column:negotiation_id;type:uuid;not null"`
	BuyerID       uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	TokenHash     string          `gorm:"column:token_hash;not null"`
	ExpiresAt     time.Time       `gorm:"column:expires_at;not null"`
	RedeemedAt    *time.Time      `gorm:"column:redeemed_at"`
	InvalidatedAt *time.Time      `gorm:"column:invalidated_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null"`
}

func (PurchaseToken) TableName() string { return "purchase_tokens" }
