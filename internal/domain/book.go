package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookStatus string

const (
	BookActive   BookStatus = "active"
	BookInactive BookStatus = "inactive"
)

// Valid reports whether s is a known lifecycle status.
func (s BookStatus) Valid() bool {
	return s == BookActive || s == BookInactive
}

// Book is a catalog entry. Stock is the authoritative counter; it only
// changes together with an entry in the stock movement ledger.
type Book struct {
	ID        int64           `json:"id"`
	ISBN      string          `json:"isbn"`
	Title     string          `json:"title"`
	Author    string          `json:"author,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	MinStock  int             `json:"min_stock"`
	Status    BookStatus      `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Sellable reports whether the book can currently be added to a sale.
func (b Book) Sellable() bool {
	return b.Status == BookActive && b.Stock > 0
}

// LowStockAlert flags a book whose stock fell to or below its threshold.
type LowStockAlert struct {
	BookID   int64  `json:"book_id"`
	Title    string `json:"title"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
}
