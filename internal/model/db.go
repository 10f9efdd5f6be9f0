package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:254" json:"email"`
	IsStaff   bool      `gorm:"not null;default:false" json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID    uint            `gorm:"primaryKey" json:"id"`
	Name  string          `gorm:"size:255;not null" json:"name"`
	Price decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock int             `gorm:"not null;default:0" json:"stock"`
}

type Cart struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	UserID    uint        `gorm:"uniqueIndex;not null" json:"user_id"` // one cart per user
	Items     []*CartItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TotalPrice is derived from the current product prices and never stored.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

type CartItem struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	CartID    uint     `gorm:"uniqueIndex:idx_cart_product;not null" json:"cart_id"`
	ProductID uint     `gorm:"uniqueIndex:idx_cart_product;not null" json:"product"`
	Product   *Product `json:"product_details,omitempty"`
	Quantity  int      `gorm:"not null" json:"quantity"`
}

func (i *CartItem) Subtotal() decimal.Decimal {
	if i.Product == nil {
		return decimal.Zero
	}
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index;not null" json:"user_id"`
	Status          OrderStatus     `gorm:"size:32;index;not null;default:pending" json:"status"`
	TotalPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"` // fixed at creation
	ShippingAddress string          `gorm:"type:text" json:"shipping_address"`
	Phone           string          `gorm:"size:32" json:"phone"`
	Items           []*OrderItem    `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"index;not null" json:"order_id"`
	ProductID uint            `gorm:"index;not null" json:"product"`
	Product   *Product        `json:"product_details,omitempty"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"` // unit price at purchase time
}

type Payment struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"index;not null" json:"user_id"`
	OrderID           uint            `gorm:"uniqueIndex;not null" json:"order_id"` // one payment per order
	Order             *Order          `gorm:"constraint:OnDelete:CASCADE" json:"order_details,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Reference         string          `gorm:"size:200;uniqueIndex;not null" json:"reference"`
	Status            PaymentStatus   `gorm:"size:20;index;not null;default:pending" json:"status"`
	ProviderPaymentID string          `gorm:"size:100" json:"provider_payment_id"`
	PaymentMethod     string          `gorm:"size:100" json:"payment_method"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// WebhookRecord is the audit log of accepted provider callbacks. Only
// Processed is ever updated.
type WebhookRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Event     string    `gorm:"size:100;index" json:"event"`
	Processed bool      `gorm:"not null;default:false" json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated caller. Staff see every user's records.
type Actor struct {
	UserID  uint
	IsStaff bool
}

// Scope returns the user id to filter by, or nil for staff.
func (a Actor) Scope() *uint {
	if a.IsStaff {
		return nil
	}
	id := a.UserID
	return &id
}
