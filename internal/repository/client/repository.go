package client

import (
	"context"

	"bookstore-pos/internal/domain"
)

// Repository persists and fetches clients of the local client directory.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	List(ctx context.Context) ([]domain.Client, error)
	Upsert(ctx context.Context, c domain.Client) (*domain.Client, error)
}
