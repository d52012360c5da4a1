package inventory

import (
	"context"
	"errors"
	"fmt"

	"bookstore-pos/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Level is a book's stock right after a ledger change.
type Level struct {
	BookID   int64
	Title    string
	Stock    int
	MinStock int
}

// Low reports whether the level is at or below the book's threshold.
func (l Level) Low() bool {
	return l.Stock <= l.MinStock
}

// Decrement takes qty units of a book inside tx. The update only matches when
// enough stock is on hand, so no concurrent transaction can drive the counter
// negative; a miss is then classified as an unknown book or a shortfall.
func Decrement(ctx context.Context, tx pgx.Tx, bookID int64, qty int) (Level, error) {
	const q = `
UPDATE books
SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2 AND status = 'active'
RETURNING id, title, stock, min_stock
`
	var lvl Level
	err := tx.QueryRow(ctx, q, bookID, qty).Scan(&lvl.BookID, &lvl.Title, &lvl.Stock, &lvl.MinStock)
	if err == nil {
		return lvl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Level{}, err
	}

	var (
		title  string
		stock  int
		status string
	)
	err = tx.QueryRow(ctx, `SELECT title, stock, status FROM books WHERE id = $1`, bookID).Scan(&title, &stock, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, &domain.NotFoundError{Entity: "book", ID: bookID}
	}
	if err != nil {
		return Level{}, err
	}
	if domain.BookStatus(status) != domain.BookActive {
		return Level{}, &domain.InsufficientStockError{BookID: bookID, Title: title, Requested: qty, Available: 0}
	}
	return Level{}, &domain.InsufficientStockError{BookID: bookID, Title: title, Requested: qty, Available: stock}
}

// Increment returns qty units of a book inside tx.
func Increment(ctx context.Context, tx pgx.Tx, bookID int64, qty int) (Level, error) {
	const q = `
UPDATE books
SET stock = stock + $2, updated_at = now()
WHERE id = $1
RETURNING id, title, stock, min_stock
`
	var lvl Level
	err := tx.QueryRow(ctx, q, bookID, qty).Scan(&lvl.BookID, &lvl.Title, &lvl.Stock, &lvl.MinStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, &domain.NotFoundError{Entity: "book", ID: bookID}
	}
	return lvl, err
}

// Append records a ledger entry inside tx.
func Append(ctx context.Context, tx pgx.Tx, m domain.StockMovement) (int64, error) {
	if m.Delta == 0 {
		return 0, fmt.Errorf("append movement for book %d: zero delta", m.BookID)
	}
	const q = `
INSERT INTO stock_movements (book_id, delta, kind, sale_id, stock_after, note)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`
	var id int64
	err := tx.QueryRow(ctx, q, m.BookID, m.Delta, string(m.Kind), m.SaleID, m.StockAfter, m.Note).Scan(&id)
	return id, err
}
