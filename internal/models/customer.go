package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Customer represents an end-buyer, unique per (tenant, phone). Created on
// first inbound message; address fields are filled lazily from order data.
type Customer struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_customers_tenant_phone,priority:1" json:"tenant_id"`
	Phone    string    `gorm:"type:text;not null;uniqueIndex:ux_customers_tenant_phone,priority:2" json:"phone"`

	Name           string `gorm:"type:text" json:"name"`
	AIAgentEnabled bool   `gorm:"type:boolean;not null;default:true" json:"ai_agent_enabled"`

	// Address, populated from order data
	Address  string `gorm:"type:text" json:"address,omitempty"`
	City     string `gorm:"type:text" json:"city,omitempty"`
	Province string `gorm:"type:text" json:"province,omitempty"`
	ZipCode  string `gorm:"type:text" json:"zip_code,omitempty"`

	Tags datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
