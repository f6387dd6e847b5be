package negotiations

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
)

const maxTextRunes = 2000

// validateAmount enforces the per-kind amount rules. ACCEPT echoes are
// compared against the target later, once it is resolved.
func validateAmount(kind enums.MessageKind, amount *decimal.Decimal) error {
	switch kind {
	case enums.MessageKindOffer, enums.MessageKindCounter:
		if amount == nil {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, strings.ToLower(string(kind))+" requires an amount")
		}
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero")
		}
		if !amount.Equal(amount.Round(2)) {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount supports at most two decimal places")
		}
	case enums.MessageKindAccept:
		if amount != nil && !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero")
		}
	case enums.MessageKindClose, enums.MessageKindNote:
		if amount != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, strings.ToLower(string(kind))+" must not carry an amount")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown message kind")
	}
	return nil
}

func normalizeText(kind enums.MessageKind, text *string) (*string, error) {
	if text == nil {
		if kind == enums.MessageKindNote {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "note requires text")
		}
		return nil, nil
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		if kind == enums.MessageKindNote {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "note requires text")
		}
		return nil, nil
	}
	if len([]rune(trimmed)) > maxTextRunes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "text is too long")
	}
	return &trimmed, nil
}

// resolveAcceptTarget picks the message an ACCEPT from role refers to. The
// target must be the newest priced message from the other side, with nothing
// from the accepting side after it.
func resolveAcceptTarget(messages []models.NegotiationMessage, role enums.SenderRole, requested *uuid.UUID) (*models.NegotiationMessage, error) {
	ordered := orderedMessages(messages)
	opposite := role.Opposite()

	var latestPriced *models.NegotiationMessage
	for i := range ordered {
		msg := &ordered[i]
		if msg.SenderRole == opposite && msg.Kind.CarriesPrice() && msg.Amount.Valid {
			latestPriced = msg
		}
	}
	if latestPriced == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStaleAccept, "there is no offer from the other side to accept")
	}

	target := latestPriced
	if requested != nil {
		target = nil
		for i := range ordered {
			if ordered[i].ID == *requested {
				target = &ordered[i]
				break
			}
		}
		if target == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "message to accept not found in this negotiation")
		}
		if target.SenderRole != opposite || !target.Kind.CarriesPrice() {
			return nil, pkgerrors.New(pkgerrors.CodeStaleAccept, "only an offer or counter from the other side can be accepted")
		}
		if target.ID != latestPriced.ID {
			return nil, staleAccept(latestPriced)
		}
	}

	for _, msg := range ordered {
		if msg.Seq > target.Seq && msg.SenderRole == role {
			return nil, staleAccept(latestPriced).WithDetails(map[string]any{
				"latest_offer_id": latestPriced.ID,
				"superseded_by":   msg.ID,
			})
		}
	}
	return target, nil
}

func staleAccept(latest *models.NegotiationMessage) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStaleAccept, "that offer is no longer current; refresh the thread").
		WithDetails(map[string]any{"latest_offer_id": latest.ID})
}
