package repositories

import (
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatRepo interface {
	GetByID(id uuid.UUID) (*models.Chat, error)
	// FindOrCreate resolves the thread for a customer on a channel,
	// creating it on first message.
	FindOrCreate(tenantID, customerID, channelID uuid.UUID) (*models.Chat, error)
	TouchLastMessage(chatID uuid.UUID, at time.Time) error
	SetAgentEnabled(chatID uuid.UUID, enabled bool) error
}

type chatRepo struct {
	db *gorm.DB
}

func NewChatRepo(db *gorm.DB) ChatRepo {
	return &chatRepo{db: db}
}

func (r *chatRepo) GetByID(id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.First(&chat, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) FindOrCreate(tenantID, customerID, channelID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.Where(
		"tenant_id = ? AND customer_id = ? AND channel_id = ?",
		tenantID, customerID, channelID,
	).First(&chat).Error

	if err == nil {
		return &chat, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	chat = models.Chat{
		TenantID:       tenantID,
		CustomerID:     customerID,
		ChannelID:      channelID,
		Status:         models.ChatStatusActive,
		AIAgentEnabled: true,
		LastMessageAt:  time.Now(),
	}
	if err := r.db.Create(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepo) TouchLastMessage(chatID uuid.UUID, at time.Time) error {
	return r.db.Model(&models.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message_at": at,
			"status":          models.ChatStatusActive,
		}).Error
}

func (r *chatRepo) SetAgentEnabled(chatID uuid.UUID, enabled bool) error {
	return r.db.Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("ai_agent_enabled", enabled).Error
}
