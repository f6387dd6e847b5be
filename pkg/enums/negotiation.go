package enums

import (
	"fmt"
	"strings"
)

// NegotiationStatus maps to the negotiation_status column.
type NegotiationStatus string

const (
	NegotiationStatusOpen     NegotiationStatus = "OPEN"
	NegotiationStatusAccepted NegotiationStatus = "ACCEPTED"
	NegotiationStatusClosed   NegotiationStatus = "CLOSED"
)

var validNegotiationStatuses = []NegotiationStatus{
	NegotiationStatusOpen,
	NegotiationStatusAccepted,
	NegotiationStatusClosed,
}

func (s NegotiationStatus) String() string {
	return string(s)
}

func (s NegotiationStatus) IsValid() bool {
	for _, candidate := range validNegotiationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further messages may be appended.
func (s NegotiationStatus) IsTerminal() bool {
	return s == NegotiationStatusAccepted || s == NegotiationStatusClosed
}

// ParseNegotiationStatus accepts any casing.
func ParseNegotiationStatus(value string) (NegotiationStatus, error) {
	normalized := NegotiationStatus(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid negotiation status %q", value)
}

// SenderRole identifies which side of the negotiation sent a message.
type SenderRole string

const (
	SenderRoleBuyer  SenderRole = "BUYER"
	SenderRoleSeller SenderRole = "SELLER"
)

func (r SenderRole) String() string {
	return string(r)
}

func (r SenderRole) IsValid() bool {
	return r == SenderRoleBuyer || r == SenderRoleSeller
}

// Opposite returns the other side of the thread.
func (r SenderRole) Opposite() SenderRole {
	if r == SenderRoleBuyer {
		return SenderRoleSeller
	}
	return SenderRoleBuyer
}

// SenderRoleFor maps an authenticated actor onto a thread side.
func SenderRoleFor(role ActorRole) (SenderRole, error) {
	switch role {
	case ActorRoleBuyer:
		return SenderRoleBuyer, nil
	case ActorRoleSeller, ActorRoleAdmin:
		return SenderRoleSeller, nil
	default:
		return "", fmt.Errorf("role %q cannot negotiate", role)
	}
}

// MessageKind is the closed set of negotiation message types.
type MessageKind string

const (
	MessageKindOffer   MessageKind = "OFFER"
	MessageKindCounter MessageKind = "COUNTER"
	MessageKindAccept  MessageKind = "ACCEPT"
	MessageKindClose   MessageKind = "CLOSE"
	MessageKindNote    MessageKind = "NOTE"
)

var validMessageKinds = []MessageKind{
	MessageKindOffer,
	MessageKindCounter,
	MessageKindAccept,
	MessageKindClose,
	MessageKindNote,
}

func (k MessageKind) String() string {
	return string(k)
}

func (k MessageKind) IsValid() bool {
	for _, candidate := range validMessageKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// CarriesPrice reports whether the kind proposes a price (OFFER, COUNTER).
func (k MessageKind) CarriesPrice() bool {
	return k == MessageKindOffer || k == MessageKindCounter
}

// ParseMessageKind accepts any casing.
func ParseMessageKind(value string) (MessageKind, error) {
	normalized := MessageKind(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid message kind %q", value)
}

// ClosedReason records why a thread was closed.
type ClosedReason string

const (
	ClosedReasonBuyerWithdrew      ClosedReason = "BUYER_WITHDREW"
	ClosedReasonSellerDeclined     ClosedReason = "SELLER_DECLINED"
	ClosedReasonProductUnavailable ClosedReason = "PRODUCT_UNAVAILABLE"
)
