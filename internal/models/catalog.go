package models

// Category groups products (phones, tablets, laptops, ...). Categories also
// drive the recommendation chatbot's first question.
type Category struct {
	BaseModel
	Name        string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:255;not null" json:"slug"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Products    []Product `json:"products,omitempty"`
}
