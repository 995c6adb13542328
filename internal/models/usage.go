package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecord meters agent invocations per tenant and billing period.
// Exactly one increment per customer-triggered invocation, regardless of
// how many outbound messages the agent produces for it.
type UsageRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_usage_tenant_period,priority:1" json:"tenant_id"`

	PeriodStart time.Time `gorm:"type:date;not null;uniqueIndex:ux_usage_tenant_period,priority:2" json:"period_start"`
	PeriodEnd   time.Time `gorm:"type:date;not null" json:"period_end"`

	AgentInvocations int64 `gorm:"not null;default:0" json:"agent_invocations"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

func (u *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
