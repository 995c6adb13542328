package repositories

import (
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepo interface {
	Create(message *models.Message) error
	GetByID(id uuid.UUID) (*models.Message, error)
	// GetByProviderID looks a message up by provider message id within a
	// tenant. Provider ids are only unique per channel, so the scope is
	// never global.
	GetByProviderID(tenantID uuid.UUID, providerMessageID string) (*models.Message, error)
	ExistsByProviderID(tenantID uuid.UUID, providerMessageID string) (bool, error)
	UpdateDeliveryStatus(tenantID uuid.UUID, providerMessageID, status string) error
	UpdateDeliveryStatusByID(messageID uuid.UUID, status string) error
	// SetProviderID backfills the provider id on a persisted agent send
	// once the provider's webhook echo identifies it.
	SetProviderID(messageID uuid.UUID, providerMessageID string) error
	// LatestPendingAgentSend returns the newest agent-sender message in a
	// chat persisted after `since` that has no provider id yet.
	LatestPendingAgentSend(chatID uuid.UUID, since time.Time) (*models.Message, error)
	UpdateMedia(messageID uuid.UUID, content string, meta models.MessageMeta) error
	ListByChat(chatID uuid.UUID, limit int) ([]models.Message, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

func (r *messageRepo) GetByID(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.db.First(&message, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepo) GetByProviderID(tenantID uuid.UUID, providerMessageID string) (*models.Message, error) {
	var message models.Message
	err := r.db.Where(
		"tenant_id = ? AND provider_message_id = ?",
		tenantID, providerMessageID,
	).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepo) ExistsByProviderID(tenantID uuid.UUID, providerMessageID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		Count(&count).Error
	return count > 0, err
}

func (r *messageRepo) UpdateDeliveryStatus(tenantID uuid.UUID, providerMessageID, status string) error {
	return r.db.Model(&models.Message{}).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		Update("delivery_status", status).Error
}

func (r *messageRepo) UpdateDeliveryStatusByID(messageID uuid.UUID, status string) error {
	return r.db.Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("delivery_status", status).Error
}

func (r *messageRepo) SetProviderID(messageID uuid.UUID, providerMessageID string) error {
	return r.db.Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("provider_message_id", providerMessageID).Error
}

func (r *messageRepo) LatestPendingAgentSend(chatID uuid.UUID, since time.Time) (*models.Message, error) {
	var message models.Message
	err := r.db.Where(
		"chat_id = ? AND sender = ? AND (provider_message_id = '' OR provider_message_id IS NULL) AND created_at >= ?",
		chatID, models.SenderAgent, since,
	).Order("created_at DESC").First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepo) UpdateMedia(messageID uuid.UUID, content string, meta models.MessageMeta) error {
	return r.db.Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"content":  content,
			"metadata": meta,
		}).Error
}

func (r *messageRepo) ListByChat(chatID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.Where("chat_id = ?", chatID).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, err
}
