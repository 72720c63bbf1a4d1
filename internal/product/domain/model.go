package domain

import "time"

// Product is a stored product record. ID is assigned by the store and is
// immutable; CreatedAt is written once.
type Product struct {
	ID          int64     `json:"-" gorm:"primaryKey;autoIncrement:false"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Description string    `json:"description" gorm:"type:varchar(500);not null"`
	Price       float64   `json:"price" gorm:"not null"`
	Category    string    `json:"category" gorm:"type:varchar(255);not null;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index:ix_products_created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Record carries the user-editable fields of a product. A nil Price means the
// value was missing or not numeric.
type Record struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Category    string   `json:"category"`
}
