package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant represents a business account of the SaaS. It owns all customers,
// chats, catalog entries and channel instances. Tenants are created by the
// signup flow; the pipeline only reads them.
type Tenant struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BusinessName string    `gorm:"type:text;not null" json:"business_name"`
	Phone        string    `gorm:"type:text" json:"phone"`

	// Agent behavior
	BufferSeconds             int    `gorm:"type:integer;not null;default:6" json:"buffer_seconds"`
	DisableAgentOnManualReply *bool  `gorm:"type:boolean" json:"disable_agent_on_manual_reply"`
	SalesMode                 string `gorm:"type:text;default:'assisted'" json:"sales_mode"`
	AgentName                 string `gorm:"type:text" json:"agent_name"`
	AgentPersonality          string `gorm:"type:text" json:"agent_personality"`
	AgentEndpoint             string `gorm:"type:text" json:"agent_endpoint"`
	AgentAPIKey               string `gorm:"type:text" json:"-"`

	// Store configuration
	StoreInfo      string         `gorm:"type:text" json:"store_info"`
	PaymentMethods datatypes.JSON `gorm:"type:jsonb" json:"payment_methods"`

	// Downstream commerce platform (optional)
	ShopifyDomain string `gorm:"type:text" json:"shopify_domain,omitempty"`
	ShopifyToken  string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ManualReplyDisablesAgent reports whether a manual operator reply should
// switch the AI agent off for that customer. Only an explicit false opts a
// tenant out of the policy.
func (t *Tenant) ManualReplyDisablesAgent() bool {
	return t.DisableAgentOnManualReply == nil || *t.DisableAgentOnManualReply
}

// Shipping rate condition types
const (
	ShippingConditionNone     = "none"
	ShippingConditionMinOrder = "minimum_order"
	ShippingConditionWeight   = "weight"
)

// ShippingRate is one configured shipping tariff of a tenant's store.
type ShippingRate struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	Price          float64   `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	ConditionType  string    `gorm:"type:text;default:'none'" json:"condition_type"`
	ConditionValue float64   `gorm:"type:decimal(12,2);default:0" json:"condition_value"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ShippingRate) TableName() string {
	return "shipping_rates"
}

func (r *ShippingRate) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// MatchesName compares tariff names ignoring case and surrounding/internal
// whitespace differences, so "Envio  Express " selects "envio express".
func (r *ShippingRate) MatchesName(name string) bool {
	return normalizeRateName(r.Name) == normalizeRateName(name)
}

func normalizeRateName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
