package models

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle values.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipping  = "shipping"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
)

// Payment status values.
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Order is created from a cart at checkout. After creation only the status,
// payment, tracking and cancel fields change.
type Order struct {
	BaseModel
	UserID          uuid.UUID   `gorm:"type:uuid;index;uniqueIndex:ux_order_idempotency" json:"user_id"`
	User            *User       `json:"user,omitempty"`
	CustomerName    string      `gorm:"not null" json:"customer_name"`
	Phone           string      `gorm:"not null" json:"phone"`
	ShippingAddress string      `gorm:"not null" json:"shipping_address"`
	PaymentMethod   string      `gorm:"size:32;not null" json:"payment_method"`
	Note            string      `json:"note"`
	TotalPrice      int64       `gorm:"not null" json:"total_price"`
	Status          string      `gorm:"size:16;not null;index" json:"status"`
	PaymentStatus   string      `gorm:"size:16;not null;index" json:"payment_status"`
	TrackingCode    string      `json:"tracking_code"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	CanceledAt      *time.Time  `json:"canceled_at,omitempty"`
	IdempotencyKey  *string     `gorm:"size:128;uniqueIndex:ux_order_idempotency" json:"-"`
	Items           []OrderItem `json:"items,omitempty"`
}

// OrderItem is one purchased line. Product and variant attributes are copied
// at checkout so later catalog edits never change order history.
type OrderItem struct {
	BaseModel
	OrderID          uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	Order            *Order    `json:"order,omitempty"`
	ProductID        uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	VariantID        uuid.UUID `gorm:"type:uuid;index" json:"variant_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Price            int64     `gorm:"not null" json:"price"`
	ProductName      string    `json:"product_name"`
	VariantColor     string    `json:"variant_color"`
	VariantStorage   string    `json:"variant_storage"`
	IsReviewPrompted bool      `gorm:"not null" json:"is_review_prompted"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() int64 { return i.Price * int64(i.Quantity) }
