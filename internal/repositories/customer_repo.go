package repositories

import (
	"encoding/json"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomerRepo interface {
	GetByID(id uuid.UUID) (*models.Customer, error)
	GetByPhone(tenantID uuid.UUID, phone string) (*models.Customer, error)
	// FindOrCreate resolves (tenant, phone) to a customer, creating one on
	// first contact. Safe under concurrent webhook invocations.
	FindOrCreate(tenantID uuid.UUID, phone, name string) (*models.Customer, error)
	Update(customer *models.Customer) error
	SetAgentEnabled(customerID uuid.UUID, enabled bool) error
	TouchLastSeen(customerID uuid.UUID) error
	AddTag(customerID uuid.UUID, tag string) error
}

type customerRepo struct {
	db *gorm.DB
}

func NewCustomerRepo(db *gorm.DB) CustomerRepo {
	return &customerRepo{db: db}
}

func (r *customerRepo) GetByID(id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.First(&customer, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepo) GetByPhone(tenantID uuid.UUID, phone string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Where("tenant_id = ? AND phone = ?", tenantID, phone).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepo) FindOrCreate(tenantID uuid.UUID, phone, name string) (*models.Customer, error) {
	customer := &models.Customer{
		TenantID:       tenantID,
		Phone:          phone,
		Name:           name,
		AIAgentEnabled: true,
	}

	// Conflict on the (tenant_id, phone) unique index keeps concurrent
	// first-contact webhooks from inserting twice.
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(customer).Error
	if err != nil {
		return nil, err
	}

	return r.GetByPhone(tenantID, phone)
}

func (r *customerRepo) Update(customer *models.Customer) error {
	return r.db.Save(customer).Error
}

func (r *customerRepo) SetAgentEnabled(customerID uuid.UUID, enabled bool) error {
	return r.db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("ai_agent_enabled", enabled).Error
}

func (r *customerRepo) TouchLastSeen(customerID uuid.UUID) error {
	return r.db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("last_seen_at", time.Now()).Error
}

func (r *customerRepo) AddTag(customerID uuid.UUID, tag string) error {
	customer, err := r.GetByID(customerID)
	if err != nil {
		return err
	}

	var tags []string
	if len(customer.Tags) > 0 {
		if err := json.Unmarshal(customer.Tags, &tags); err != nil {
			tags = nil
		}
	}
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	tags = append(tags, tag)

	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	return r.db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("tags", datatypes.JSON(raw)).Error
}
