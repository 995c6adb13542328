package repositories

import (
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepo interface {
	Create(product *models.Product) error
	GetByID(tenantID, id uuid.UUID) (*models.Product, error)
	GetByVariantID(tenantID uuid.UUID, variantID string) (*models.Product, error)
	GetByShopifyVariantID(tenantID uuid.UUID, shopifyVariantID string) (*models.Product, error)
	GetByShopifyProductID(tenantID uuid.UUID, shopifyProductID string) (*models.Product, error)
	GetByName(tenantID uuid.UUID, name string) (*models.Product, error)
	Update(product *models.Product) error
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepo {
	return &productRepo{db: db}
}

func (r *productRepo) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

func (r *productRepo) GetByID(tenantID, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) GetByVariantID(tenantID uuid.UUID, variantID string) (*models.Product, error) {
	return r.firstWhere(tenantID, "variant_id = ?", variantID)
}

func (r *productRepo) GetByShopifyVariantID(tenantID uuid.UUID, shopifyVariantID string) (*models.Product, error) {
	return r.firstWhere(tenantID, "shopify_variant_id = ?", shopifyVariantID)
}

func (r *productRepo) GetByShopifyProductID(tenantID uuid.UUID, shopifyProductID string) (*models.Product, error) {
	return r.firstWhere(tenantID, "shopify_product_id = ?", shopifyProductID)
}

func (r *productRepo) GetByName(tenantID uuid.UUID, name string) (*models.Product, error) {
	var product models.Product
	err := r.db.Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) Update(product *models.Product) error {
	return r.db.Save(product).Error
}

func (r *productRepo) firstWhere(tenantID uuid.UUID, cond string, value string) (*models.Product, error) {
	if value == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var product models.Product
	err := r.db.Where("tenant_id = ?", tenantID).
		Where(cond, value).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}
