package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/facetcraft/nyp-backend/pkg/db/models"
	"github.com/facetcraft/nyp-backend/pkg/enums"
)

// Repository reads the catalog slice negotiations depend on. The catalog is
// owned elsewhere; nothing here writes products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
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

// FindByID returns gorm.ErrRecordNotFound when the product does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Negotiable reports whether buyers may open a negotiation on the product.
func Negotiable(p *models.Product) bool {
	return p != nil && p.NegotiationEnabled && p.Status == enums.ProductStatusActive
}
