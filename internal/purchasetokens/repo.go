package purchasetokens

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, token *models.PurchaseToken) error
	FindByCommitment(ctx context.Context, commitmentID uuid.UUID) (*models.PurchaseToken, error)
	FindByHash(ctx context.Context, hash string) (*models.PurchaseToken, error)
	MarkRedeemed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	InvalidateForCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, token *models.PurchaseToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *repository) FindByCommitment(ctx context.Context, commitmentID uuid.UUID) (*models.PurchaseToken, error) {
	return r.findOne(ctx, "commitment_id = ?", commitmentID)
}

func (r *repository) FindByHash(ctx context.Context, hash string) (*models.PurchaseToken, error) {
	return r.findOne(ctx, "token_hash = ?", hash)
}

// MarkRedeemed succeeds for at most one caller per token.
func (r *repository) MarkRedeemed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PurchaseToken{}).
		Where("id = ? AND redeemed_at IS NULL AND invalidated_at IS NULL", id).
		Update("redeemed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InvalidateForCommitment(ctx context.Context, tx *gorm.DB, commitmentID uuid.UUID, at time.Time) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).
		Model(&models.PurchaseToken{}).
		Where("commitment_id = ? AND redeemed_at IS NULL AND invalidated_at IS NULL", commitmentID).
		Update("invalidated_at", at).Error
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.PurchaseToken, error) {
	var token models.PurchaseToken
	err := r.db.WithContext(ctx).Where(query, arg).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}
