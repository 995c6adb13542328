package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a catalog entry. Products imported from Shopify keep
// their origin ids so agent references can be resolved against whichever
// identifier the agent last saw.
type Product struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`

	Name        string `gorm:"type:text;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	SKU         string `gorm:"type:text" json:"sku,omitempty"`

	Price float64 `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Stock int     `gorm:"type:integer;not null;default:0" json:"stock"`

	// Identity across catalog sources
	VariantID        string `gorm:"type:text;index" json:"variant_id,omitempty"`
	ShopifyProductID string `gorm:"type:text;index" json:"shopify_product_id,omitempty"`
	ShopifyVariantID string `gorm:"type:text;index" json:"shopify_variant_id,omitempty"`

	ImageURL string `gorm:"type:text" json:"image_url,omitempty"`

	// Placeholder products are created inactive by the order materializer
	// when no catalog entry matches the agent's reference.
	IsActive bool `gorm:"type:boolean;default:true" json:"is_active"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsAvailable checks if product is available for sale
func (p *Product) IsAvailable() bool {
	return p.IsActive && p.Stock > 0
}
