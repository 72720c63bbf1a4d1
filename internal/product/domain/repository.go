package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	// Update replaces the user fields and updated_at. It returns the number of
	// rows matched so callers can detect unknown ids.
	Update(ctx context.Context, db *gorm.DB, product *Product) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id int64) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	ListByCreatedDesc(ctx context.Context, db *gorm.DB) ([]Product, error)
}
