package negotiations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/internal/entitlements"
	"github.com/facetcraft/nyp-backend/internal/products"
	"github.com/facetcraft/nyp-backend/pkg/auth"
	"github.com/facetcraft/nyp-backend/pkg/db"
	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/metrics"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
	"github.com/facetcraft/nyp-backend/pkg/pagination"
)

const productUnavailableText = "product unavailable"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type entitlementEvaluator interface {
	Evaluate(ctx context.Context, buyerID *uuid.UUID) entitlements.Entitlement
}

// commitmentCreator is called inside the accepting transaction.
type commitmentCreator interface {
	OnAccepted(ctx context.Context, tx *gorm.DB, negotiation models.Negotiation) (*models.Commitment, error)
}

// Service owns negotiation threads and their status transitions.
type Service interface {
	Open(ctx context.Context, input OpenInput) (Thread, error)
	AppendMessage(ctx context.Context, input AppendInput) (Thread, error)
	GetThread(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (Thread, error)
	List(ctx context.Context, actor auth.Actor, status *enums.NegotiationStatus, params pagination.Params) (pagination.Page[Summary], error)
	CloseForProduct(ctx context.Context, productID uuid.UUID, actor auth.Actor) (int, error)
}

type OpenInput struct {
	Actor     auth.Actor
	ProductID uuid.UUID
	Amount    decimal.Decimal
	Text      *string
}

type AppendInput struct {
	NegotiationID   uuid.UUID
	Actor           auth.Actor
	Kind            enums.MessageKind
	Amount          *decimal.Decimal
	Text            *string
	AcceptMessageID *uuid.UUID
}

// CommitmentRef is attached to the thread returned by a successful ACCEPT.
type CommitmentRef struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type ServiceParams struct {
	Repo         Repository
	Products     products.Repository
	Entitlements entitlementEvaluator
	Commitments  commitmentCreator
	Tx           txRunner
	Outbox       outboxPublisher
	Currency     string
	Metrics      *metrics.EngineMetrics
	Logger       *logger.Logger
	Clock        func() time.Time
}

type service struct {
	repo         Repository
	products     products.Repository
	entitlements entitlementEvaluator
	commitments  commitmentCreator
	tx           txRunner
	outbox       outboxPublisher
	currency     string
	metrics      *metrics.EngineMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("negotiations repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement evaluator required")
	}
	if params.Commitments == nil {
		return nil, fmt.Errorf("commitment creator required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:         params.Repo,
		products:     params.Products,
		entitlements: params.Entitlements,
		commitments:  params.Commitments,
		tx:           params.Tx,
		outbox:       params.Outbox,
		currency:     currency,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          clock,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

func (s *service) Open(ctx context.Context, input OpenInput) (Thread, error) {
	thread, err := s.open(ctx, input)
	s.metrics.ObserveMessage(string(enums.MessageKindOffer), outcomeOf(err))
	return thread, err
}

func (s *service) open(ctx context.Context, input OpenInput) (Thread, error) {
	actor := input.Actor
	if actor.UserID == uuid.Nil {
		return Thread{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to make an offer")
	}
	if actor.Role != enums.ActorRoleBuyer {
		return Thread{}, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can open a negotiation")
	}
	if input.ProductID == uuid.Nil {
		return Thread{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id required")
	}
	amount := input.Amount
	if err := validateAmount(enums.MessageKindOffer, &amount); err != nil {
		return Thread{}, err
	}
	text, err := normalizeText(enums.MessageKindOffer, input.Text)
	if err != nil {
		return Thread{}, err
	}

	buyerID := actor.UserID
	entitlement := s.entitlements.Evaluate(ctx, &buyerID)
	if !entitlement.UnlockedNYP {
		return Thread{}, pkgerrors.New(pkgerrors.CodeNotEligible,
			fmt.Sprintf("Spend %s to unlock Name Your Price.", FormatMoney(entitlement.Threshold))).
			WithDetails(entitlement)
	}

	var created models.Negotiation
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := s.products.WithTx(tx).FindByID(ctx, input.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if !products.Negotiable(product) {
			return pkgerrors.New(pkgerrors.CodeProductNotEligible, "this product does not accept offers")
		}

		existing, err := repo.FindOpen(ctx, buyerID, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open negotiation")
		}
		if existing != nil {
			return alreadyOpen(existing.ID)
		}

		now := s.clock()
		currency := product.Currency
		if currency == "" {
			currency = s.currency
		}
		negotiationID := uuid.New()
		created = models.Negotiation{
			ID:           negotiationID,
			ProductID:    product.ID,
			BuyerID:      buyerID,
			ProductTitle: product.Title,
			ProductPrice: product.Price,
			Currency:     currency,
			Status:       enums.NegotiationStatusOpen,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
			Messages: []models.NegotiationMessage{{
				ID:            uuid.New(),
				NegotiationID: negotiationID,
				Seq:           1,
				SenderRole:    enums.SenderRoleBuyer,
				SenderID:      &buyerID,
				Kind:          enums.MessageKindOffer,
				Amount:        decimal.NewNullDecimal(amount),
				Text:          text,
				CreatedAt:     now,
			}},
		}
		if err := repo.Create(ctx, &created); err != nil {
			if db.IsUniqueViolation(err, "") {
				return alreadyOpen(uuid.Nil)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create negotiation")
		}
		return s.emit(ctx, tx, enums.EventNegotiationOpened, created, &created.Messages[0], &actor)
	})
	if err != nil {
		return Thread{}, err
	}

	s.info(ctx, created.ID, "negotiation.opened")
	return BuildThread(created), nil
}

func (s *service) AppendMessage(ctx context.Context, input AppendInput) (Thread, error) {
	thread, err := s.appendMessage(ctx, input)
	s.metrics.ObserveMessage(string(input.Kind), outcomeOf(err))
	return thread, err
}

func (s *service) appendMessage(ctx context.Context, input AppendInput) (Thread, error) {
	actor := input.Actor
	if actor.UserID == uuid.Nil {
		return Thread{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	role, err := enums.SenderRoleFor(actor.Role)
	if err != nil {
		return Thread{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "role cannot negotiate")
	}
	if !input.Kind.IsValid() {
		return Thread{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown message kind")
	}
	if err := validateAmount(input.Kind, input.Amount); err != nil {
		return Thread{}, err
	}
	text, err := normalizeText(input.Kind, input.Text)
	if err != nil {
		return Thread{}, err
	}

	cmd := appendCommand{
		negotiationID: input.NegotiationID,
		actor:         actor,
		role:          role,
		kind:          input.Kind,
		amount:        input.Amount,
		text:          text,
		acceptID:      input.AcceptMessageID,
	}
	if input.Kind == enums.MessageKindClose {
		reason := enums.ClosedReasonSellerDeclined
		if role == enums.SenderRoleBuyer {
			reason = enums.ClosedReasonBuyerWithdrew
		}
		cmd.closedReason = &reason
	}

	negotiation, commitment, err := s.apply(ctx, cmd)
	if err != nil {
		return Thread{}, err
	}
	thread := BuildThread(*negotiation)
	if commitment != nil {
		thread.Commitment = &CommitmentRef{
			OrderID:   commitment.ID,
			Amount:    commitment.AgreedAmount,
			ExpiresAt: commitment.CommitExpiresAt,
		}
	}
	return thread, nil
}

func (s *service) GetThread(ctx context.Context, negotiationID uuid.UUID, actor auth.Actor) (Thread, error) {
	negotiation, err := s.repo.FindByID(ctx, negotiationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Thread{}, pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
	}
	if err != nil {
		return Thread{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load negotiation")
	}
	if !actor.CanView(negotiation.BuyerID) {
		return Thread{}, pkgerrors.New(pkgerrors.CodeForbidden, "negotiation belongs to another buyer")
	}
	return BuildThread(*negotiation), nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, status *enums.NegotiationStatus, params pagination.Params) (pagination.Page[Summary], error) {
	if actor.UserID == uuid.Nil {
		return pagination.Page[Summary]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	filter := ListFilter{Status: status, Limit: pagination.LimitWithBuffer(params.Limit)}
	if !actor.IsStaff() {
		buyerID := actor.UserID
		filter.BuyerID = &buyerID
	}
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[Summary]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.After = after

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Page[Summary]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list negotiations")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(n models.Negotiation) pagination.Cursor {
		return pagination.Cursor{UpdatedAt: n.UpdatedAt, ID: n.ID}
	})
	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, BuildSummary(row))
	}
	return pagination.Page[Summary]{Items: summaries, NextCursor: next}, nil
}

// CloseForProduct closes every open thread on a product that can no longer
// be sold. Each thread closes in its own transaction; already-terminal
// threads are skipped.
func (s *service) CloseForProduct(ctx context.Context, productID uuid.UUID, actor auth.Actor) (int, error) {
	if !actor.IsStaff() {
		return 0, pkgerrors.New(pkgerrors.CodeForbidden, "staff only")
	}
	status := enums.NegotiationStatusOpen
	open, err := s.repo.List(ctx, ListFilter{ProductID: &productID, Status: &status})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list open negotiations")
	}

	text := productUnavailableText
	reason := enums.ClosedReasonProductUnavailable
	closed := 0
	var errs error
	for _, negotiation := range open {
		cmd := appendCommand{
			negotiationID: negotiation.ID,
			actor:         actor,
			role:          enums.SenderRoleSeller,
			kind:          enums.MessageKindClose,
			text:          &text,
			closedReason:  &reason,
		}
		_, _, err := s.apply(ctx, cmd)
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			_, _, err = s.apply(ctx, cmd)
		}
		s.metrics.ObserveMessage(string(enums.MessageKindClose), outcomeOf(err))
		switch {
		case err == nil:
			closed++
		case pkgerrors.HasCode(err, pkgerrors.CodeNegotiationClosed):
		default:
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", negotiation.ID, err))
		}
	}
	if errs != nil {
		return closed, pkgerrors.Wrap(pkgerrors.CodeInternal, errs, "close negotiations for product")
	}
	return closed, nil
}

type appendCommand struct {
	negotiationID uuid.UUID
	actor         auth.Actor
	role          enums.SenderRole
	kind          enums.MessageKind
	amount        *decimal.Decimal
	text          *string
	acceptID      *uuid.UUID
	closedReason  *enums.ClosedReason
}

// apply appends one message under the version guard and performs the status
// transition it implies.
func (s *service) apply(ctx context.Context, cmd appendCommand) (*models.Negotiation, *models.Commitment, error) {
	var (
		negotiation *models.Negotiation
		commitment  *models.Commitment
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, cmd.negotiationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "negotiation not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load negotiation")
		}
		if !cmd.actor.CanView(current.BuyerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "negotiation belongs to another buyer")
		}
		if current.Status.IsTerminal() {
			return negotiationClosed(current)
		}

		now := s.clock()
		senderID := cmd.actor.UserID
		message := models.NegotiationMessage{
			ID:            uuid.New(),
			NegotiationID: current.ID,
			Seq:           current.Version + 1,
			SenderRole:    cmd.role,
			SenderID:      &senderID,
			Kind:          cmd.kind,
			Text:          cmd.text,
			CreatedAt:     now,
		}
		if cmd.amount != nil {
			message.Amount = decimal.NewNullDecimal(*cmd.amount)
		}

		fields := map[string]any{"updated_at": now}
		switch cmd.kind {
		case enums.MessageKindAccept:
			target, err := resolveAcceptTarget(current.Messages, cmd.role, cmd.acceptID)
			if err != nil {
				return err
			}
			agreed := target.Amount.Decimal
			if cmd.amount != nil && !cmd.amount.Equal(agreed) {
				return pkgerrors.New(pkgerrors.CodeInvalidAmount, "accepted amount does not match the offer").
					WithDetails(map[string]any{"offer_amount": agreed})
			}
			message.Amount = decimal.NewNullDecimal(agreed)
			fields["status"] = enums.NegotiationStatusAccepted
			fields["accepted_message_id"] = target.ID
			fields["agreed_amount"] = agreed
			current.Status = enums.NegotiationStatusAccepted
			current.AcceptedMessageID = &target.ID
			current.AgreedAmount = decimal.NewNullDecimal(agreed)
		case enums.MessageKindClose:
			fields["status"] = enums.NegotiationStatusClosed
			if cmd.closedReason != nil {
				fields["closed_reason"] = *cmd.closedReason
			}
			current.Status = enums.NegotiationStatusClosed
			current.ClosedReason = cmd.closedReason
		}

		ok, err := repo.Advance(ctx, current.ID, current.Version, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advance negotiation")
		}
		if !ok {
			return s.lostRace(ctx, repo, current.ID, cmd.kind)
		}
		if err := repo.InsertMessage(ctx, &message); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "negotiation changed; refresh the thread")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append message")
		}
		current.Version++
		current.UpdatedAt = now
		current.Messages = append(current.Messages, message)

		eventType := enums.EventNegotiationMessageAppended
		switch cmd.kind {
		case enums.MessageKindAccept:
			eventType = enums.EventNegotiationAccepted
			commitment, err = s.commitments.OnAccepted(ctx, tx, *current)
			if err != nil {
				return err
			}
		case enums.MessageKindClose:
			eventType = enums.EventNegotiationClosed
		}
		if err := s.emit(ctx, tx, eventType, *current, &message, &cmd.actor); err != nil {
			return err
		}
		negotiation = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if negotiation.Status.IsTerminal() {
		s.info(ctx, negotiation.ID, "negotiation."+string(cmd.kind))
	}
	return negotiation, commitment, nil
}

// lostRace explains a failed version guard from the row's current state.
func (s *service) lostRace(ctx context.Context, repo Repository, id uuid.UUID, kind enums.MessageKind) error {
	fresh, err := repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload negotiation")
	}
	if fresh.Status.IsTerminal() {
		return negotiationClosed(fresh)
	}
	if kind == enums.MessageKindAccept {
		return pkgerrors.New(pkgerrors.CodeStaleAccept, "the thread moved on; refresh before accepting")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "negotiation changed; refresh the thread")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, n models.Negotiation, message *models.NegotiationMessage, actor *auth.Actor) error {
	data := outbox.NegotiationEvent{
		NegotiationID: n.ID,
		ProductID:     n.ProductID,
		BuyerID:       n.BuyerID,
		ProductTitle:  n.ProductTitle,
		Status:        n.Status,
		ClosedReason:  n.ClosedReason,
	}
	if message != nil {
		data.Kind = message.Kind
		data.SenderRole = message.SenderRole
		data.Seq = message.Seq
		if message.Amount.Valid {
			amount := message.Amount.Decimal
			data.Amount = &amount
		}
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateNegotiation,
		AggregateID:   n.ID,
		Data:          data,
	}
	if actor != nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) info(ctx context.Context, negotiationID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithNegotiationID(ctx, negotiationID.String()), msg)
}

func negotiationClosed(n *models.Negotiation) error {
	return pkgerrors.New(pkgerrors.CodeNegotiationClosed, "this negotiation is "+string(n.Status)).
		WithDetails(map[string]any{"status": n.Status})
}

func alreadyOpen(existingID uuid.UUID) error {
	err := pkgerrors.New(pkgerrors.CodeAlreadyOpen, "you already have an open offer on this product")
	if existingID != uuid.Nil {
		return err.WithDetails(map[string]any{"negotiation_id": existingID})
	}
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}
