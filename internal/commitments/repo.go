package commitments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Repository persists commitments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commitment *models.Commitment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Commitment, error)
	// FindByIDForUpdate row-locks the commitment until the transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Commitment, error)
	FindByNegotiation(ctx context.Context, negotiationID uuid.UUID) (*models.Commitment, error)
	// UpdatePending applies fields only while the row is still pending and
	// reports whether it did.
	UpdatePending(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, fields map[string]any) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Commitment, error)
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

func (r *repository) Create(ctx context.Context, commitment *models.Commitment) error {
	return r.db.WithContext(ctx).Create(commitment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Commitment, error) {
	var commitment models.Commitment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&commitment).Error; err != nil {
		return nil, err
	}
	return &commitment, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Commitment, error) {
	var commitment models.Commitment
	if err := lockByID(r.db.WithContext(ctx), id).First(&commitment).Error; err != nil {
		return nil, err
	}
	return &commitment, nil
}

func lockByID(db *gorm.DB, id uuid.UUID) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).Where("id = ?", id)
}

// FindByNegotiation returns nil, nil when the negotiation has no commitment.
func (r *repository) FindByNegotiation(ctx context.Context, negotiationID uuid.UUID) (*models.Commitment, error) {
	var commitment models.Commitment
	err := r.db.WithContext(ctx).Where("negotiation_id = ?", negotiationID).First(&commitment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commitment, nil
}

func (r *repository) UpdatePending(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Commitment{}).
		Where("id = ? AND status = ?", id, enums.CommitmentStatusPending).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Commitment{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ListDue returns pending commitments past their deadline with no checkout
// session still open, oldest deadline first.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Commitment, error) {
	var rows []models.Commitment
	q := r.db.WithContext(ctx).
		Where("status = ? AND commit_expires_at <= ?", enums.CommitmentStatusPending, now).
		Where("checkout_session_expires_at IS NULL OR checkout_session_expires_at <= ?", now).
		Order("commit_expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
