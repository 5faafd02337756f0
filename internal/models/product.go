package models

import (
	"github.com/google/uuid"
)

// Product is a catalog entry. AverageRating and ReviewCount are a cache that is
// recomputed from the live reviews after every review mutation.
type Product struct {
	BaseModel
	Name           string           `gorm:"size:255;not null;index" json:"name"`
	Description    string           `json:"description"`
	CategoryID     uuid.UUID        `gorm:"type:uuid;index" json:"category_id"`
	Category       *Category        `json:"category,omitempty"`
	Thumbnail      string           `json:"thumbnail"`
	Specifications SpecMap          `gorm:"type:text;serializer:json" json:"specifications"`
	AverageRating  float64          `gorm:"not null;default:0" json:"average_rating"`
	ReviewCount    int              `gorm:"not null;default:0" json:"review_count"`
	IsActive       bool             `gorm:"not null;index" json:"is_active"`
	Variants       []ProductVariant `json:"variants,omitempty"`
	Images         []ProductImage   `json:"images,omitempty"`
}

// ProductVariant is a purchasable color x storage configuration with its own
// price and stock.
type ProductVariant struct {
	BaseModel
	ProductID      uuid.UUID `gorm:"type:uuid;index:idx_variant_config" json:"product_id"`
	Product        *Product  `json:"product,omitempty"`
	Color          string    `gorm:"size:64;index:idx_variant_config" json:"color"`
	Storage        string    `gorm:"size:64;index:idx_variant_config" json:"storage"`
	Price          int64     `gorm:"not null;default:0;index" json:"price"`
	Stock          int       `gorm:"not null;default:0" json:"stock"`
	SKU            *string   `gorm:"uniqueIndex;size:64" json:"sku,omitempty"`
	Specifications SpecMap   `gorm:"type:text;serializer:json" json:"specifications,omitempty"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
}

// Available reports whether the variant can currently be sold.
func (v ProductVariant) Available() bool { return v.IsActive && v.Stock > 0 }

// ProductImage is a gallery image. Upload happens elsewhere; only the URL is kept.
type ProductImage struct {
	BaseModel
	ProductID    uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	URL          string    `gorm:"not null" json:"url"`
	AltText      string    `json:"alt_text"`
	DisplayOrder int       `json:"display_order"`
	IsPrimary    bool      `json:"is_primary"`
}
