package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// SpendReader returns the sum of a buyer's completed order totals.
type SpendReader interface {
	CompletedSpend(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error)
}

// Repository covers the tables this package reads and writes.
type Repository interface {
	SpendReader
	WithTx(tx *gorm.DB) Repository
	FindOverride(ctx context.Context, userID uuid.UUID) (*models.EntitlementOverride, error)
	UpsertOverride(ctx context.Context, override models.EntitlementOverride) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed Repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CompletedSpend(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0) AS total").
		Where("buyer_id = ? AND status = ?", buyerID, enums.OrderStatusCompleted).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *repository) FindOverride(ctx context.Context, userID uuid.UUID) (*models.EntitlementOverride, error) {
	var override models.EntitlementOverride
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&override).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &override, nil
}

func (r *repository) UpsertOverride(ctx context.Context, override models.EntitlementOverride) error {
	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_by", "updated_at"}),
		}).
		Create(&override).Error
}
