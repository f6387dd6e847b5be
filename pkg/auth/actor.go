package auth

import (
	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// IsStaff reports whether the actor speaks for the seller.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// CanView reports whether the actor may read a record owned by buyerID.
func (a Actor) CanView(buyerID uuid.UUID) bool {
	if a.UserID == uuid.Nil {
		return false
	}
	return a.IsStaff() || a.UserID == buyerID
}
