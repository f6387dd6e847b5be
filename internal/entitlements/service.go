package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	pkgerrors "github.com/facetcraft/nyp-backend/pkg/errors"
	"github.com/facetcraft/nyp-backend/pkg/logger"
	"github.com/facetcraft/nyp-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SpendInvalidator is implemented by spend caches.
type SpendInvalidator interface {
	Invalidate(ctx context.Context, buyerID uuid.UUID) error
}

// Service evaluates and administers Name-Your-Price eligibility.
type Service interface {
	// Evaluate never fails; anonymous callers and read failures resolve to Locked.
	Evaluate(ctx context.Context, buyerID *uuid.UUID) Entitlement
	SetOverride(ctx context.Context, input OverrideInput) (Entitlement, error)
	Threshold() decimal.Decimal
}

// OverrideInput is an admin request to unlock (or re-lock) a user.
type OverrideInput struct {
	UserID  uuid.UUID
	Enabled bool
	ActorID uuid.UUID
}

type ServiceParams struct {
	Repo      Repository
	Spend     SpendReader
	Tx        txRunner
	Outbox    outboxPublisher
	Threshold decimal.Decimal
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	spend     SpendReader
	tx        txRunner
	outbox    outboxPublisher
	threshold decimal.Decimal
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("entitlements repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Threshold.IsNegative() {
		return nil, fmt.Errorf("threshold must not be negative")
	}
	spend := params.Spend
	if spend == nil {
		spend = params.Repo
	}
	return &service{
		repo:      params.Repo,
		spend:     spend,
		tx:        params.Tx,
		outbox:    params.Outbox,
		threshold: params.Threshold,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) Threshold() decimal.Decimal {
	return s.threshold
}

func (s *service) Evaluate(ctx context.Context, buyerID *uuid.UUID) Entitlement {
	if buyerID == nil || *buyerID == uuid.Nil {
		return Locked(s.threshold)
	}

	spend, err := s.spend.CompletedSpend(ctx, *buyerID)
	if err != nil {
		s.warn(ctx, *buyerID, "entitlements.spend_lookup_failed", err)
		return Locked(s.threshold)
	}

	override := false
	record, err := s.repo.FindOverride(ctx, *buyerID)
	if err != nil {
		s.warn(ctx, *buyerID, "entitlements.override_lookup_failed", err)
	} else if record != nil {
		override = record.Enabled
	}

	return Compute(spend, s.threshold, override)
}

func (s *service) SetOverride(ctx context.Context, input OverrideInput) (Entitlement, error) {
	if input.UserID == uuid.Nil {
		return Entitlement{}, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.ActorID == uuid.Nil {
		return Entitlement{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	actorID := input.ActorID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertOverride(ctx, models.EntitlementOverride{
			UserID:    input.UserID,
			Enabled:   input.Enabled,
			UpdatedBy: &actorID,
			UpdatedAt: s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save entitlement override")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEntitlementOverrideChanged,
			AggregateType: enums.AggregateUser,
			AggregateID:   input.UserID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(enums.ActorRoleAdmin)},
			Data:          outbox.EntitlementOverrideEvent{UserID: input.UserID, Enabled: input.Enabled},
		})
	})
	if err != nil {
		return Entitlement{}, err
	}

	userID := input.UserID
	return s.Evaluate(ctx, &userID), nil
}

func (s *service) warn(ctx context.Context, buyerID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"buyer_id": buyerID.String(),
		"error":    err.Error(),
	})
	s.logg.Warn(ctx, msg)
}
