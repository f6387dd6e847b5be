package negotiations

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

const previewRunes = 50

// Summary is the list projection of a thread. Everything after Currency is
// derived from the messages on every read.
type Summary struct {
	ID                 uuid.UUID               `json:"id"`
	ProductID          uuid.UUID               `json:"product_id"`
	BuyerID            uuid.UUID               `json:"buyer_id"`
	ProductTitle       string                  `json:"product_title"`
	ProductPrice       decimal.Decimal         `json:"product_price"`
	Currency           string                  `json:"currency"`
	Status             enums.NegotiationStatus `json:"status"`
	AgreedAmount       *decimal.Decimal        `json:"agreed_amount,omitempty"`
	ClosedReason       *enums.ClosedReason     `json:"closed_reason,omitempty"`
	LastAmount         *decimal.Decimal        `json:"last_amount"`
	LastActivityAt     time.Time               `json:"last_activity_at"`
	MessageCount       int                     `json:"message_count"`
	LastMessagePreview string                  `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

type MessageView struct {
	ID         uuid.UUID         `json:"id"`
	Seq        int               `json:"seq"`
	SenderRole enums.SenderRole  `json:"sender_role"`
	Kind       enums.MessageKind `json:"kind"`
	Amount     *decimal.Decimal  `json:"amount,omitempty"`
	Text       *string           `json:"text,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Thread is the full history of a negotiation.
type Thread struct {
	Summary
	AcceptedMessageID *uuid.UUID     `json:"accepted_message_id,omitempty"`
	Messages          []MessageView  `json:"messages"`
	Commitment        *CommitmentRef `json:"commitment,omitempty"`
}

// BuildSummary derives the projection from n.Messages, which must be loaded.
func BuildSummary(n models.Negotiation) Summary {
	messages := orderedMessages(n.Messages)
	summary := Summary{
		ID:             n.ID,
		ProductID:      n.ProductID,
		BuyerID:        n.BuyerID,
		ProductTitle:   n.ProductTitle,
		ProductPrice:   n.ProductPrice,
		Currency:       n.Currency,
		Status:         n.Status,
		ClosedReason:   n.ClosedReason,
		MessageCount:   len(messages),
		LastActivityAt: n.CreatedAt,
		CreatedAt:      n.CreatedAt,
	}
	if n.AgreedAmount.Valid {
		agreed := n.AgreedAmount.Decimal
		summary.AgreedAmount = &agreed
	}
	for _, msg := range messages {
		if msg.Amount.Valid {
			amount := msg.Amount.Decimal
			summary.LastAmount = &amount
		}
	}
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		summary.LastActivityAt = last.CreatedAt
		if last.Text != nil {
			summary.LastMessagePreview = preview(*last.Text)
		}
	}
	return summary
}

func BuildThread(n models.Negotiation) Thread {
	messages := orderedMessages(n.Messages)
	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		view := MessageView{
			ID:         msg.ID,
			Seq:        msg.Seq,
			SenderRole: msg.SenderRole,
			Kind:       msg.Kind,
			Text:       msg.Text,
			CreatedAt:  msg.CreatedAt,
		}
		if msg.Amount.Valid {
			amount := msg.Amount.Decimal
			view.Amount = &amount
		}
		views = append(views, view)
	}
	return Thread{
		Summary:           BuildSummary(n),
		AcceptedMessageID: n.AcceptedMessageID,
		Messages:          views,
	}
}

func orderedMessages(messages []models.NegotiationMessage) []models.NegotiationMessage {
	out := make([]models.NegotiationMessage, len(messages))
	copy(out, messages)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes])
}
