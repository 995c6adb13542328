package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupItem is one buffered member of a message group. Sequence numbers
// start at 1 and capture webhook arrival order.
type GroupItem struct {
	Sequence          int    `json:"sequence"`
	MessageID         string `json:"message_id"`
	ProviderMessageID string `json:"provider_message_id"`
	Type              string `json:"type"`
	Content           string `json:"content"`
}

// GroupItems is a JSONB array of buffered members.
type GroupItems []GroupItem

func (g *GroupItems) Scan(value interface{}) error {
	if value == nil {
		*g = []GroupItem{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, g)
}

func (g GroupItems) Value() (driver.Value, error) {
	if g == nil {
		return json.Marshal([]GroupItem{})
	}
	return json.Marshal(g)
}

// MessageGroup accumulates consecutive customer text messages for one
// (tenant, customer) pair until the debounce window elapses. Durable so
// the pending flush survives process restarts.
type MessageGroup struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index:idx_groups_tenant_customer" json:"tenant_id"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index:idx_groups_tenant_customer" json:"customer_id"`
	ChatID     uuid.UUID `gorm:"type:uuid;not null" json:"chat_id"`

	Items GroupItems `gorm:"type:jsonb;not null" json:"items"`

	Sent           bool      `gorm:"type:boolean;not null;default:false;index" json:"sent"`
	LastActivityAt time.Time `gorm:"not null" json:"last_activity_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageGroup) TableName() string {
	return "message_groups"
}

func (g *MessageGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.LastActivityAt.IsZero() {
		g.LastActivityAt = time.Now()
	}
	return nil
}

// NextSequence returns the sequence number for the next member.
func (g *MessageGroup) NextSequence() int {
	return len(g.Items) + 1
}

// LastSequence returns the highest member sequence, 0 for an empty group.
func (g *MessageGroup) LastSequence() int {
	if len(g.Items) == 0 {
		return 0
	}
	return g.Items[len(g.Items)-1].Sequence
}

// HasProviderMessage reports whether a member already carries the given
// provider message id. Used by the idempotency guard for unflushed groups.
func (g *MessageGroup) HasProviderMessage(providerMessageID string) bool {
	for _, item := range g.Items {
		if item.ProviderMessageID == providerMessageID {
			return true
		}
	}
	return false
}
