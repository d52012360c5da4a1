package domain

import "time"

type MovementKind string

const (
	MovementSale    MovementKind = "sale"
	MovementVoid    MovementKind = "void"
	MovementRestock MovementKind = "restock"
)

// StockMovement is an append-only ledger entry. Summing Delta per book
// yields the book's expected stock.
type StockMovement struct {
	ID         int64        `json:"id"`
	BookID     int64        `json:"book_id"`
	Delta      int          `json:"delta"`
	Kind       MovementKind `json:"kind"`
	SaleID     *int64       `json:"sale_id,omitempty"`
	StockAfter int          `json:"stock_after"`
	Note       string       `json:"note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Discrepancy reports a book whose counter disagrees with its ledger.
type Discrepancy struct {
	BookID      int64  `json:"book_id"`
	Title       string `json:"title"`
	Stock       int    `json:"stock"`
	LedgerStock int    `json:"ledger_stock"`
}
