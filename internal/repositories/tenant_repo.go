package repositories

import (
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenantRepo interface {
	GetByID(id uuid.UUID) (*models.Tenant, error)
	ListShippingRates(tenantID uuid.UUID) ([]models.ShippingRate, error)
}

type tenantRepo struct {
	db *gorm.DB
}

func NewTenantRepo(db *gorm.DB) TenantRepo {
	return &tenantRepo{db: db}
}

func (r *tenantRepo) GetByID(id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.First(&tenant, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepo) ListShippingRates(tenantID uuid.UUID) ([]models.ShippingRate, error) {
	var rates []models.ShippingRate
	err := r.db.Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&rates).Error
	return rates, err
}
