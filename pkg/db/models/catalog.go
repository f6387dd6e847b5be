package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Product is the read-only slice of the catalog this service consumes.
type Product struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Title              string              `gorm:"column:title;not null"`
	Price              decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency           string              `gorm:"column:currency;not null"`
	NegotiationEnabled bool                `gorm:"column:negotiation_enabled;not null"`
	Status             enums.ProductStatus `gorm:"column:status;not null"`
}

func (Product) TableName() string { return "products" }

// Order is the read-only slice of the order subsystem used for spend.
type Order struct {
	ID      uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	Total   decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status  enums.OrderStatus `gorm:"column:status;not null"`
}

func (Order) TableName() string { return "orders" }

// EntitlementOverride lets an admin unlock negotiation regardless of spend.
type EntitlementOverride struct {
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Enabled   bool       `gorm:"column:enabled;not null"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (EntitlementOverride) TableName() string { return "nyp_entitlement_overrides" }
