package models

import "github.com/google/uuid"

// Cart belongs to exactly one user and is created on first access.
type Cart struct {
	BaseModel
	UserID uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Items  []CartItem `json:"items,omitempty"`
}

// CartItem references a live product variant; prices are never cached here.
type CartItem struct {
	BaseModel
	CartID    uuid.UUID       `gorm:"type:uuid;uniqueIndex:ux_cart_variant" json:"cart_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;index" json:"product_id"`
	VariantID uuid.UUID       `gorm:"type:uuid;uniqueIndex:ux_cart_variant" json:"variant_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Product   *Product        `json:"product,omitempty"`
	Variant   *ProductVariant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}
