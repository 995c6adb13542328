package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message sender classes
const (
	SenderCustomer = "customer"
	SenderBusiness = "business"
	SenderAgent    = "agent"
)

// Message types
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
)

// Media resolution states inside MessageMeta
const (
	MediaStatusPending  = "pending"
	MediaStatusResolved = "resolved"
	MediaStatusFailed   = "failed"
)

// Delivery statuses (provider ack callbacks)
const (
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusRead      = "read"
	DeliveryStatusFailed    = "failed"
)

// QuotedRef carries a reference to a quoted message. When the quoted
// provider id is found in the message log the fields are authoritative;
// otherwise they are best-effort inferred from the payload.
type QuotedRef struct {
	ProviderMessageID string `json:"provider_message_id"`
	Type              string `json:"type,omitempty"`
	Content           string `json:"content,omitempty"`
	Sender            string `json:"sender,omitempty"`
}

// MessageMeta is the JSONB metadata column of a message.
type MessageMeta struct {
	MediaID     string     `json:"media_id,omitempty"`
	MediaURL    string     `json:"media_url,omitempty"`
	MediaStatus string     `json:"media_status,omitempty"`
	MimeType    string     `json:"mime_type,omitempty"`
	Caption     string     `json:"caption,omitempty"`
	Quoted      *QuotedRef `json:"quoted,omitempty"`
}

func (m *MessageMeta) Scan(value interface{}) error {
	if value == nil {
		*m = MessageMeta{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

func (m MessageMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Message is an immutable record of one inbound or outbound communication.
// Only the delivery status field is updated after insert, by provider ack
// callbacks matched on ProviderMessageID.
type Message struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ChatID   uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_chat" json:"chat_id"`

	Sender  string `gorm:"type:text;not null" json:"sender"`
	Type    string `gorm:"type:text;not null;default:'text'" json:"type"`
	Content string `gorm:"type:text" json:"content"`

	ProviderMessageID string `gorm:"type:text;index:idx_messages_provider_id" json:"provider_message_id"`
	DeliveryStatus    string `gorm:"type:text" json:"delivery_status,omitempty"`

	Metadata MessageMeta `gorm:"type:jsonb" json:"metadata"`

	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// IsMedia reports whether the message carries a media payload.
func (m *Message) IsMedia() bool {
	switch m.Type {
	case MessageTypeImage, MessageTypeAudio, MessageTypeVideo, MessageTypeDocument:
		return true
	}
	return false
}
