package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
)

// Notification is a rendered buyer-facing text message.
type Notification struct {
	Template      string
	RecipientID   uuid.UUID
	NegotiationID uuid.UUID
	Text          string
	// Phone is filled from the recipient's preferences before sending.
	Phone string
}

const (
	TemplateOfferSent       = "NYP_OFFER_SENT"
	TemplateCounterReceived = "NYP_COUNTER_SENT"
	TemplateAccepted        = "NYP_ACCEPTED"
	TemplateClosed          = "NYP_CLOSED"
)

var templates = map[string]string{
	TemplateOfferSent:       "Offer sent for %s.",
	TemplateCounterReceived: "Counter-offer received for %s.",
	TemplateAccepted:        "Offer accepted for %s. Open your account to purchase.",
	TemplateClosed:          "Negotiation closed for %s.",
}

// Render maps a negotiation event onto the buyer notification it triggers.
// Events the buyer caused themselves, other than the opening offer, render
// nothing.
func Render(eventType enums.OutboxEventType, event outbox.NegotiationEvent) (Notification, bool) {
	var template string
	switch eventType {
	case enums.EventNegotiationOpened:
		template = TemplateOfferSent
	case enums.EventNegotiationMessageAppended:
		if event.SenderRole != enums.SenderRoleSeller || event.Kind != enums.MessageKindCounter {
			return Notification{}, false
		}
		template = TemplateCounterReceived
	case enums.EventNegotiationAccepted:
		if event.SenderRole != enums.SenderRoleSeller {
			return Notification{}, false
		}
		template = TemplateAccepted
	case enums.EventNegotiationClosed:
		if event.SenderRole != enums.SenderRoleSeller {
			return Notification{}, false
		}
		template = TemplateClosed
	default:
		return Notification{}, false
	}
	if event.BuyerID == uuid.Nil {
		return Notification{}, false
	}

	title := strings.TrimSpace(event.ProductTitle)
	if title == "" {
		title = "your item"
	}
	return Notification{
		Template:      template,
		RecipientID:   event.BuyerID,
		NegotiationID: event.NegotiationID,
		Text:          fmt.Sprintf(templates[template], title),
	}, true
}
