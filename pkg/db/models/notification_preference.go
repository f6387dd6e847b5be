package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationPreference records whether a buyer wants negotiation texts
// and where to send them. A missing row means opted out.
type NotificationPreference struct {
	UserID                 uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	SMSNegotiationsEnabled bool      `gorm:"column:sms_negotiations_enabled;not null"`
	PhoneE164              *string   `gorm:"column:phone_e164"`
	UpdatedAt              time.Time `gorm:"column:updated_at;not null"`
}

func (NotificationPreference) TableName() string { return "notification_preferences" }
