package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat statuses
const (
	ChatStatusActive   = "active"
	ChatStatusArchived = "archived"
)

// Chat is one conversational thread per (tenant, customer), scoped by
// channel instance so tenants with several connected numbers keep threads
// apart.
type Chat struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	ChannelID  uuid.UUID `gorm:"type:uuid;not null;index" json:"channel_id"`

	Status         string    `gorm:"type:text;not null;default:'active'" json:"status"`
	AIAgentEnabled bool      `gorm:"type:boolean;not null;default:true" json:"ai_agent_enabled"`
	LastMessageAt  time.Time `json:"last_message_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Customer Customer `gorm:"foreignKey:CustomerID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Chat) TableName() string {
	return "chats"
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
