package negotiations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
	"github.com/facetcraft/nyp-backend/pkg/pagination"
)

// ListFilter narrows List. Zero values mean "any"; a zero Limit returns
// every matching row.
type ListFilter struct {
	BuyerID   *uuid.UUID
	ProductID *uuid.UUID
	Status    *enums.NegotiationStatus
	After     *pagination.Cursor
	Limit     int
}

// Repository persists negotiation threads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, negotiation *models.Negotiation) error
	InsertMessage(ctx context.Context, message *models.NegotiationMessage) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error)
	FindOpen(ctx context.Context, buyerID, productID uuid.UUID) (*models.Negotiation, error)
	List(ctx context.Context, filter ListFilter) ([]models.Negotiation, error)
	// Advance bumps the version from expected and applies fields, only while
	// the thread is still OPEN at that version.
	Advance(ctx context.Context, id uuid.UUID, expected int, fields map[string]any) (bool, error)
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

// Create inserts the thread and any messages attached to it.
func (r *repository) Create(ctx context.Context, negotiation *models.Negotiation) error {
	messages := negotiation.Messages
	negotiation.Messages = nil
	defer func() { negotiation.Messages = messages }()

	if err := r.db.WithContext(ctx).Omit("Messages").Create(negotiation).Error; err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&messages).Error
}

func (r *repository) InsertMessage(ctx context.Context, message *models.NegotiationMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := r.withMessages(ctx).Where("id = ?", id).First(&negotiation).Error
	if err != nil {
		return nil, err
	}
	return &negotiation, nil
}

// FindOpen returns nil, nil when the buyer has no open thread on the product.
func (r *repository) FindOpen(ctx context.Context, buyerID, productID uuid.UUID) (*models.Negotiation, error) {
	var negotiation models.Negotiation
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND product_id = ? AND status = ?", buyerID, productID, enums.NegotiationStatusOpen).
		First(&negotiation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &negotiation, nil
}

// List returns threads most recently active first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Negotiation, error) {
	q := r.withMessages(ctx)
	if filter.BuyerID != nil {
		q = q.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.After != nil {
		q = q.Where("((updated_at < ?) OR (updated_at = ? AND id < ?))", filter.After.UpdatedAt, filter.After.UpdatedAt, filter.After.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	// messages preload only for the rows of this page
	var rows []models.Negotiation
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Advance(ctx context.Context, id uuid.UUID, expected int, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = expected + 1

	res := r.db.WithContext(ctx).
		Model(&models.Negotiation{}).
		Where("id = ? AND version = ? AND status = ?", id, expected, enums.NegotiationStatusOpen).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) withMessages(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	})
}
