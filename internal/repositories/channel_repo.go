package repositories

import (
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChannelRepo interface {
	GetByID(id uuid.UUID) (*models.Channel, error)
	GetByWebhookToken(token string) (*models.Channel, error)
	ListByTenant(tenantID uuid.UUID) ([]models.Channel, error)
}

type channelRepo struct {
	db *gorm.DB
}

func NewChannelRepo(db *gorm.DB) ChannelRepo {
	return &channelRepo{db: db}
}

func (r *channelRepo) GetByID(id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.First(&channel, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *channelRepo) GetByWebhookToken(token string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.Where("webhook_token = ? AND is_active = true", token).
		First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *channelRepo) ListByTenant(tenantID uuid.UUID) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.Where("tenant_id = ?", tenantID).Find(&channels).Error
	return channels, err
}
