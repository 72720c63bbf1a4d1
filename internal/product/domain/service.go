package domain

import (
	"context"
	"time"
)

// CancelFunc releases a subscription. It is safe to call more than once.
type CancelFunc func()

// ChangeFunc receives the full ordered record set on every change, or a nil
// set and a *StoreError when the live query fails.
type ChangeFunc func(records []Response, err error)

type Service interface {
	Create(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, rec Record) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Response, error)
	ListOnce(ctx context.Context) ([]Response, error)
	Subscribe(ctx context.Context, onChange ChangeFunc) (CancelFunc, error)
}

// Response is the wire and view shape of a product; ID is the decimal string
// form of the stored identifier.
type Response struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
