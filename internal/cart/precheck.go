package cart

import (
	"fmt"

	"bookstore-pos/internal/domain"
	"github.com/shopspring/decimal"
)

// SaleItem is one line of a sale submission.
type SaleItem struct {
	BookID    int64           `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleRequest is the payload sent to the sale endpoint.
type SaleRequest struct {
	ClientID      int64           `json:"client_id"`
	Items         []SaleItem      `json:"items"`
	Discount      decimal.Decimal `json:"discount"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
}

// Checkout carries the non-line fields of a submission.
type Checkout struct {
	ClientID      int64
	Discount      decimal.Decimal
	PaymentMethod domain.PaymentMethod
	Notes         string
}

// Precheck is the client-side gate run before anything is sent. It is
// advisory; the server re-checks stock atomically on commit.
func Precheck(c Cart, clientID int64) error {
	if c.IsEmpty() {
		return domain.Invalid("items", "cart is empty")
	}
	if clientID <= 0 {
		return domain.Invalid("client_id", "select a client")
	}
	for i, l := range c.lines {
		if l.Quantity <= 0 {
			return domain.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if l.Quantity > l.StockSnapshot {
			return insufficient(l, l.Quantity)
		}
	}
	return nil
}

// ToRequest runs Precheck and builds the submission payload.
func ToRequest(c Cart, co Checkout) (SaleRequest, error) {
	if err := Precheck(c, co.ClientID); err != nil {
		return SaleRequest{}, err
	}
	if co.Discount.IsNegative() {
		return SaleRequest{}, domain.Invalid("discount", "must not be negative")
	}
	if co.Discount.GreaterThan(c.Subtotal()) {
		return SaleRequest{}, domain.Invalid("discount", "exceeds subtotal")
	}
	method := co.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	req := SaleRequest{
		ClientID:      co.ClientID,
		Items:         make([]SaleItem, 0, len(c.lines)),
		Discount:      co.Discount,
		PaymentMethod: string(method),
		Notes:         co.Notes,
	}
	for _, l := range c.lines {
		req.Items = append(req.Items, SaleItem{BookID: l.BookID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return req, nil
}
