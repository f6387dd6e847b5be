package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Negotiation is one buyer's offer thread over one product. Version counts
// appended messages and guards every mutation.
type Negotiation struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	ProductTitle      string                  `gorm:"column:product_title;not null"`
	ProductPrice      decimal.Decimal         `gorm:"column:product_price;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;not null"`
	Status            enums.NegotiationStatus `gorm:"column:status;not null"`
	Version           int                     `gorm:"column:version;not null"`
	AcceptedMessageID *uuid.UUID              `gorm:"column:accepted_message_id;type:uuid"`
	AgreedAmount      decimal.NullDecimal     `gorm:"column:agreed_amount;type:numeric(12,2)"`
	ClosedReason      *enums.ClosedReason     `gorm:"column:closed_reason"`
	CreatedAt         time.Time               `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;not null"`

	Messages []NegotiationMessage `gorm:"foreignKey:NegotiationID"`
}

func (Negotiation) TableName() string { return "negotiations" }

// NegotiationMessage is immutable once written.
type NegotiationMessage struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	NegotiationID uuid.UUID           `gorm:"column:negotiation_id;type:uuid;not null"`
	Seq           int                 `gorm:"column:seq;not null"`
	SenderRole    enums.SenderRole    `gorm:"column:sender_role;not null"`
	SenderID      *uuid.UUID          `gorm:"column:sender_id;type:uuid"`
	Kind          enums.MessageKind   `gorm:"column:kind;not null"`
	Amount        decimal.NullDecimal `gorm:"column:amount;type:numeric(12,2)"`
	Text          *string             `gorm:"column:text"`
	CreatedAt     time.Time           `gorm:"column:created_at;not null"`
}

func (NegotiationMessage) TableName() string { return "negotiation_messages" }
