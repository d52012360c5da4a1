package inventory

import (
	"context"

	"bookstore-pos/internal/domain"
)

// RestockInput adds received units to a book.
type RestockInput struct {
	BookID   int64
	Quantity int
	Note     string
}

// Repository exposes the stock movement ledger.
type Repository interface {
	Movements(ctx context.Context, bookID int64, limit int) ([]domain.StockMovement, error)
	// Discrepancies lists books whose stock counter differs from the sum of their ledger deltas.
	Discrepancies(ctx context.Context) ([]domain.Discrepancy, error)
	Restock(ctx context.Context, in RestockInput) (*domain.StockMovement, error)
}
