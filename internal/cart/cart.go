// Package cart holds the point-of-sale basket as an immutable value.
// Every operation returns a new Cart and leaves its receiver untouched.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"bookstore-pos/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrLineIndex is returned when a line index does not address an existing line.
var ErrLineIndex = errors.New("cart line index out of range")

// Product is the catalog snapshot a line is built from.
type Product struct {
	BookID int64
	Title  string
	Price  decimal.Decimal
	Stock  int
}

// ProductFromBook snapshots the sellable fields of a catalog book.
func ProductFromBook(b domain.Book) Product {
	return Product{BookID: b.ID, Title: b.Title, Price: b.Price, Stock: b.Stock}
}

// Line is one pending cart line. 0 < Quantity <= StockSnapshot always holds.
type Line struct {
	BookID        int64           `json:"book_id"`
	Title         string          `json:"title"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockSnapshot int             `json:"stock_snapshot"`
}

// Total returns quantity × unit price.
func (l Line) Total() decimal.Decimal {
	return domain.LineTotal(l.Quantity, l.UnitPrice)
}

// Cart is an ordered list of lines, unique by book.
type Cart struct {
	lines []Line
}

// New builds a cart from existing lines, validating the line invariants.
func New(lines ...Line) (Cart, error) {
	seen := make(map[int64]struct{}, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Cart{}, domain.Invalid(fmt.Sprintf("lines[%d].quantity", i), "must be positive")
		}
		if l.Quantity > l.StockSnapshot {
			return Cart{}, insufficient(l, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return Cart{}, domain.Invalid(fmt.Sprintf("lines[%d].unit_price", i), "must not be negative")
		}
		if _, dup := seen[l.BookID]; dup {
			return Cart{}, domain.Invalid(fmt.Sprintf("lines[%d].book_id", i), "duplicate book in cart")
		}
		seen[l.BookID] = struct{}{}
	}
	return Cart{lines: append([]Line(nil), lines...)}, nil
}

// Lines returns a copy of the cart lines.
func (c Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

func (c Cart) Len() int { return len(c.lines) }

func (c Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Add puts qty units of p into the cart; qty <= 0 adds a single unit. An
// existing line for the same book is increased and its stock snapshot
// refreshed. Going past the snapshot fails and the original cart is returned
// unchanged.
func (c Cart) Add(p Product, qty int) (Cart, error) {
	if qty <= 0 {
		qty = 1
	}
	if i := c.indexOf(p.BookID); i >= 0 {
		next := c.lines[i]
		next.StockSnapshot = p.Stock
		if qty > next.StockSnapshot-next.Quantity {
			return c, insufficient(next, sumCapped(next.Quantity, qty))
		}
		next.Quantity += qty
		return c.replace(i, next), nil
	}
	line := Line{
		BookID:        p.BookID,
		Title:         p.Title,
		Quantity:      qty,
		UnitPrice:     p.Price,
		StockSnapshot: p.Stock,
	}
	if line.Quantity > line.StockSnapshot {
		return c, insufficient(line, line.Quantity)
	}
	lines := make([]Line, 0, len(c.lines)+1)
	lines = append(lines, c.lines...)
	return Cart{lines: append(lines, line)}, nil
}

// ChangeQuantity adjusts line i by delta. A result at or below zero removes
// the line; a result above the stock snapshot is rejected without change.
func (c Cart) ChangeQuantity(i, delta int) (Cart, error) {
	if i < 0 || i >= len(c.lines) {
		return c, ErrLineIndex
	}
	next := c.lines[i]
	if delta > 0 && delta > next.StockSnapshot-next.Quantity {
		return c, insufficient(next, sumCapped(next.Quantity, delta))
	}
	if delta <= -next.Quantity {
		return c.Remove(i)
	}
	next.Quantity += delta
	return c.replace(i, next), nil
}

// Remove drops line i.
func (c Cart) Remove(i int) (Cart, error) {
	if i < 0 || i >= len(c.lines) {
		return c, ErrLineIndex
	}
	lines := make([]Line, 0, len(c.lines)-1)
	lines = append(lines, c.lines[:i]...)
	lines = append(lines, c.lines[i+1:]...)
	return Cart{lines: lines}, nil
}

// Clear returns an empty cart.
func (c Cart) Clear() Cart {
	return Cart{}
}

// Totals summarises the cart.
type Totals struct {
	Items    int             `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Subtotal is the sum of the line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Totals computes subtotal and total for the given discount.
func (c Cart) Totals(discount decimal.Decimal) Totals {
	t := Totals{Subtotal: c.Subtotal(), Discount: discount}
	for _, l := range c.lines {
		t.Items += l.Quantity
	}
	t.Total = t.Subtotal.Sub(discount)
	return t
}

func (c Cart) MarshalJSON() ([]byte, error) {
	lines := c.lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(struct {
		Lines []Line `json:"lines"`
	}{Lines: lines})
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var wire struct {
		Lines []Line `json:"lines"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := New(wire.Lines...)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

func (c Cart) indexOf(bookID int64) int {
	for i, l := range c.lines {
		if l.BookID == bookID {
			return i
		}
	}
	return -1
}

func (c Cart) replace(i int, l Line) Cart {
	lines := append([]Line(nil), c.lines...)
	lines[i] = l
	return Cart{lines: lines}
}

// sumCapped returns have+more, saturating at math.MaxInt.
func sumCapped(have, more int) int {
	if more > math.MaxInt-have {
		return math.MaxInt
	}
	return have + more
}

func insufficient(l Line, requested int) error {
	return &domain.InsufficientStockError{
		BookID:    l.BookID,
		Title:     l.Title,
		Requested: requested,
		Available: l.StockSnapshot,
	}
}
