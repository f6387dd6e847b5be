package enums

import "fmt"

// CommitmentStatus is the persisted lifecycle of a pending order created from
// an accepted negotiation.
type CommitmentStatus string

const (
	CommitmentStatusPending       CommitmentStatus = "pending"
	CommitmentStatusPaid          CommitmentStatus = "paid"
	CommitmentStatusExpired       CommitmentStatus = "expired"
	CommitmentStatusPaymentReview CommitmentStatus = "payment_review"
)

var validCommitmentStatuses = []CommitmentStatus{
	CommitmentStatusPending,
	CommitmentStatusPaid,
	CommitmentStatusExpired,
	CommitmentStatusPaymentReview,
}

func (s CommitmentStatus) String() string {
	return string(s)
}

func (s CommitmentStatus) IsValid() bool {
	for _, candidate := range validCommitmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseCommitmentStatus(value string) (CommitmentStatus, error) {
	for _, candidate := range validCommitmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commitment status %q", value)
}

// OrderStatus mirrors the order subsystem's statuses. Only completed orders
// count toward spend.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ProductStatus mirrors the catalog's product lifecycle.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusSold     ProductStatus = "sold"
	ProductStatusArchived ProductStatus = "archived"
)
