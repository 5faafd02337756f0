package models

import "github.com/google/uuid"

// Review is written against a single purchased order item.
type Review struct {
	BaseModel
	UserID      uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	User        *User      `json:"user,omitempty"`
	ProductID   uuid.UUID  `gorm:"type:uuid;index" json:"product_id"`
	OrderItemID uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"order_item_id"`
	OrderItem   *OrderItem `json:"order_item,omitempty"`
	Rating      int        `gorm:"not null" json:"rating"`
	Comment     string     `json:"comment"`
}
