package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"bookstore-pos/internal/domain"
)

// Command is a closed set of cart mutations. Each variant applies itself.
type Command interface {
	Apply(Cart) (Cart, error)
	command()
}

// AddLine adds Quantity units of Product; zero or less adds one.
type AddLine struct {
	Product  Product
	Quantity int
}

// ChangeQuantity adjusts the line at Index by Delta.
type ChangeQuantity struct {
	Index int
	Delta int
}

// RemoveLine drops the line at Index.
type RemoveLine struct {
	Index int
}

// ClearCart empties the cart.
type ClearCart struct{}

func (c AddLine) Apply(in Cart) (Cart, error)        { return in.Add(c.Product, c.Quantity) }
func (c ChangeQuantity) Apply(in Cart) (Cart, error) { return in.ChangeQuantity(c.Index, c.Delta) }
func (c RemoveLine) Apply(in Cart) (Cart, error)     { return in.Remove(c.Index) }
func (ClearCart) Apply(in Cart) (Cart, error)        { return in.Clear(), nil }

func (AddLine) command()        {}
func (ChangeQuantity) command() {}
func (RemoveLine) command()     {}
func (ClearCart) command()      {}

// Run applies cmds in order. On failure it returns the cart as it was before
// the failing command, together with the error.
func Run(c Cart, cmds ...Command) (Cart, error) {
	for i, cmd := range cmds {
		next, err := cmd.Apply(c)
		if err != nil {
			return c, fmt.Errorf("command %d: %w", i, err)
		}
		c = next
	}
	return c, nil
}

// ProductResolver loads the current catalog snapshot for a book.
type ProductResolver func(bookID int64) (Product, error)

// Wire action tags accepted by DecodeCommand.
const (
	ActionAddLine        = "add_line"
	ActionChangeQuantity = "change_quantity"
	ActionRemoveLine     = "remove_line"
	ActionClear          = "clear"
)

type wireCommand struct {
	Action   string `json:"action"`
	BookID   int64  `json:"book_id"`
	Quantity int    `json:"quantity"`
	Index    *int   `json:"index"`
	Delta    int    `json:"delta"`
}

// DecodeCommand maps a wire command onto its variant. The action tag is
// inspected only here; add_line commands resolve their book through resolve.
func DecodeCommand(raw []byte, resolve ProductResolver) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, domain.Invalid("action", "malformed command")
	}
	switch strings.ToLower(strings.TrimSpace(w.Action)) {
	case ActionAddLine:
		if w.BookID <= 0 {
			return nil, domain.Invalid("book_id", "required")
		}
		if w.Quantity < 0 {
			return nil, domain.Invalid("quantity", "must not be negative")
		}
		p, err := resolve(w.BookID)
		if err != nil {
			return nil, err
		}
		return AddLine{Product: p, Quantity: w.Quantity}, nil
	case ActionChangeQuantity:
		if w.Index == nil {
			return nil, domain.Invalid("index", "required")
		}
		if w.Delta == 0 {
			return nil, domain.Invalid("delta", "must not be zero")
		}
		return ChangeQuantity{Index: *w.Index, Delta: w.Delta}, nil
	case ActionRemoveLine:
		if w.Index == nil {
			return nil, domain.Invalid("index", "required")
		}
		return RemoveLine{Index: *w.Index}, nil
	case ActionClear:
		return ClearCart{}, nil
	case "":
		return nil, domain.Invalid("action", "required")
	default:
		return nil, domain.Invalid("action", fmt.Sprintf("unsupported action %q", w.Action))
	}
}
