package models

import "github.com/google/uuid"

// AIMessage is the persisted transcript of one recommendation request.
// Rows are append-only.
type AIMessage struct {
	BaseModel
	UserID          uuid.UUID            `gorm:"type:uuid;index" json:"user_id"`
	CategoryID      uuid.UUID            `gorm:"type:uuid;index" json:"category_id"`
	Category        *Category            `json:"category,omitempty"`
	PriceMin        int64                `gorm:"not null" json:"price_min"`
	PriceMax        *int64               `json:"price_max"`
	Description     string               `gorm:"type:text;not null" json:"description"`
	TokensUsed      int                  `json:"tokens_used"`
	Recommendations []RecommendedProduct `json:"recommendations,omitempty"`
}

// RecommendedProduct is one ranked pick attached to an AIMessage.
type RecommendedProduct struct {
	BaseModel
	AIMessageID uuid.UUID `gorm:"type:uuid;uniqueIndex:ux_ai_message_rank" json:"ai_message_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Product     *Product  `json:"product,omitempty"`
	Rank        int       `gorm:"uniqueIndex:ux_ai_message_rank;not null" json:"rank"`
	Reason      string    `gorm:"type:text" json:"reason"`
}
