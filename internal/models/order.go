package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Order sources
const (
	OrderSourceAgent  = "agent"
	OrderSourceManual = "manual"
)

// Order is created by the order materializer. Total is computed once at
// creation (subtotal + shipping) and never recomputed implicitly.
type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	OrderNumber string    `gorm:"type:text;unique;not null" json:"order_number"`

	Status string `gorm:"type:text;not null;default:'pending'" json:"status"`
	Source string `gorm:"type:text;not null;default:'agent'" json:"source"`

	Subtotal       float64    `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	ShippingCost   float64    `gorm:"type:decimal(12,2);not null;default:0" json:"shipping_cost"`
	ShippingRateID *uuid.UUID `gorm:"type:uuid" json:"shipping_rate_id,omitempty"`
	Total          float64    `gorm:"type:decimal(12,2);not null" json:"total"`

	PaymentMethod string `gorm:"type:text" json:"payment_method"`
	Notes         string `gorm:"type:text" json:"notes,omitempty"`

	// Shipping address as supplied with the order instruction
	Address  string `gorm:"type:text" json:"address,omitempty"`
	City     string `gorm:"type:text" json:"city,omitempty"`
	Province string `gorm:"type:text" json:"province,omitempty"`
	ZipCode  string `gorm:"type:text" json:"zip_code,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem references a resolved product with the quantity and unit price
// captured at order time.
type OrderItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`

	ProductName string  `gorm:"type:text;not null" json:"product_name"`
	Quantity    int     `gorm:"type:integer;not null" json:"quantity"`
	UnitPrice   float64 `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Subtotal    float64 `gorm:"type:decimal(12,2);not null" json:"subtotal"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
