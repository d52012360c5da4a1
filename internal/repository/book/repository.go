package book

import (
	"context"

	"bookstore-pos/internal/domain"
)

// ListFilter narrows catalog listings. Zero values mean "no filter".
type ListFilter struct {
	Status   domain.BookStatus
	LowStock bool
	Query    string
}

// Repository reads and maintains catalog rows. Upsert never changes stock;
// stock moves only through the sale, void and restock paths.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Book, error)
	GetByISBN(ctx context.Context, isbn string) (*domain.Book, error)
	List(ctx context.Context, f ListFilter) ([]domain.Book, error)
	Upsert(ctx context.Context, b domain.Book) (*domain.Book, error)
}
