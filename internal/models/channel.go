package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel provider kinds
const (
	ChannelProviderBSP    = "bsp"
	ChannelProviderMeta   = "meta"
	ChannelProviderDirect = "direct"
)

// Channel is one connected WhatsApp number of a tenant. A tenant may
// connect several numbers; chats are scoped by channel instance. The
// opaque WebhookToken identifies the channel (and therefore the tenant)
// in inbound webhook URLs.
type Channel struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`

	Provider    string `gorm:"type:text;not null" json:"provider"`
	DisplayName string `gorm:"type:text" json:"display_name"`

	// PhoneNumber is the business number in plain international format.
	// PhoneNumberID is Meta's opaque id for that number (Cloud API only).
	PhoneNumber   string `gorm:"type:text;not null" json:"phone_number"`
	PhoneNumberID string `gorm:"type:text" json:"phone_number_id,omitempty"`

	// Credentials for the provider's send API.
	AccessToken string `gorm:"type:text" json:"-"`
	APIKey      string `gorm:"type:text" json:"-"`
	BaseURL     string `gorm:"type:text" json:"base_url,omitempty"`

	// WebhookToken routes inbound webhooks to this channel.
	// VerifyToken answers Meta's GET subscription challenge.
	WebhookToken string `gorm:"type:text;unique;not null" json:"webhook_token"`
	VerifyToken  string `gorm:"type:text" json:"-"`

	IsActive  bool      `gorm:"type:boolean;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Channel) TableName() string {
	return "channels"
}

func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
