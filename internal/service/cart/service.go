package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"bookstore-pos/internal/cart"
	"bookstore-pos/internal/domain"
	"github.com/shopspring/decimal"
)

// maxActions bounds one evaluation request.
const maxActions = 100

type productSource interface {
	Product(ctx context.Context, bookID int64) (cart.Product, error)
}

// Service evaluates cart commands against the live catalog. Carts are not
// stored; the caller sends its current cart with every request.
type Service struct {
	products productSource
}

func New(products productSource) *Service {
	return &Service{products: products}
}

type ApplyInput struct {
	Cart     cart.Cart         `json:"cart"`
	Actions  []json.RawMessage `json:"actions"`
	Discount decimal.Decimal   `json:"discount"`
}

type ApplyResult struct {
	Cart   cart.Cart   `json:"cart"`
	Totals cart.Totals `json:"totals"`
}

// Apply decodes every action first, then runs them in order. Nothing is
// applied when any action is malformed or refers to an unsellable book.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	if len(in.Actions) > maxActions {
		return nil, domain.Invalid("actions", fmt.Sprintf("at most %d actions per request", maxActions))
	}
	resolve := func(bookID int64) (cart.Product, error) {
		return s.products.Product(ctx, bookID)
	}
	cmds := make([]cart.Command, 0, len(in.Actions))
	for i, raw := range in.Actions {
		cmd, err := cart.DecodeCommand(raw, resolve)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}

	next, err := cart.Run(in.Cart, cmds...)
	if err != nil {
		return nil, err
	}
	if in.Discount.IsNegative() {
		return nil, domain.Invalid("discount", "must not be negative")
	}
	if !domain.WholeCents(in.Discount) {
		return nil, domain.Invalid("discount", "at most 2 decimal places")
	}
	if in.Discount.GreaterThan(next.Subtotal()) {
		return nil, domain.Invalid("discount", "exceeds subtotal")
	}
	return &ApplyResult{Cart: next, Totals: next.Totals(in.Discount)}, nil
}
