// Package posclient is the till-side client: it builds a cart from the live
// catalog, runs the local pre-check and submits the sale to the API.
package posclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"bookstore-pos/internal/cart"
	"bookstore-pos/internal/domain"
	"github.com/google/uuid"
	"resty.dev/v3"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Receipt mirrors the server's sale confirmation.
type Receipt struct {
	Success       bool                   `json:"success"`
	SaleID        int64                  `json:"sale_id"`
	InvoiceNumber string                 `json:"invoice_number"`
	Subtotal      string                 `json:"subtotal"`
	Discount      string                 `json:"discount"`
	Total         string                 `json:"total"`
	LowStock      []domain.LowStockAlert `json:"low_stock"`
	Replayed      bool                   `json:"replayed"`
}

type Client struct {
	http      *resty.Client
	cashierID int64
}

func New(baseURL string, cashierID int64, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("X-Cashier-ID", strconv.FormatInt(cashierID, 10))
	return &Client{http: c, cashierID: cashierID}
}

func (c *Client) Close() error {
	return c.http.Close()
}

// Pick is one requested line: a book and how many copies.
type Pick struct {
	BookID   int64
	Quantity int
}

// ParsePick parses "<book id>" or "<book id>:<quantity>".
func ParsePick(s string) (Pick, error) {
	id, qty := s, "1"
	for i := range s {
		if s[i] == ':' {
			id, qty = s[:i], s[i+1:]
			break
		}
	}
	bookID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || bookID <= 0 {
		return Pick{}, fmt.Errorf("invalid book id in %q", s)
	}
	n, err := strconv.Atoi(qty)
	if err != nil || n <= 0 {
		return Pick{}, fmt.Errorf("invalid quantity in %q", s)
	}
	return Pick{BookID: bookID, Quantity: n}, nil
}

func (c *Client) Book(ctx context.Context, id int64) (*domain.Book, error) {
	var out domain.Book
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&out).
		Get("/api/v1/books/{id}")
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// BuildCart snapshots every picked book and adds the requested quantities.
// A pick exceeding the snapshot stock fails here, before anything is sent.
func (c *Client) BuildCart(ctx context.Context, picks []Pick) (cart.Cart, error) {
	var cmds []cart.Command
	for _, p := range picks {
		b, err := c.Book(ctx, p.BookID)
		if err != nil {
			return cart.Cart{}, err
		}
		if b.Status != domain.BookActive {
			return cart.Cart{}, fmt.Errorf("book %q is not for sale", b.Title)
		}
		cmds = append(cmds, cart.AddLine{Product: cart.ProductFromBook(*b), Quantity: p.Quantity})
	}
	return cart.Run(cart.Cart{}, cmds...)
}

// Submit runs the pre-check, then posts the sale. A blank idempotencyKey is
// replaced by a fresh one so a retried call cannot record the sale twice.
func (c *Client) Submit(ctx context.Context, ct cart.Cart, co cart.Checkout, idempotencyKey string) (*Receipt, error) {
	req, err := cart.ToRequest(ct, co)
	if err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	var out Receipt
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/sales")
	if err != nil {
		return nil, fmt.Errorf("submit sale: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return &out, nil
}

func (c *Client) Void(ctx context.Context, saleID int64, reason string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(saleID, 10)).
		SetBody(map[string]string{"reason": reason}).
		Post("/api/v1/sales/{id}/void")
	if err != nil {
		return fmt.Errorf("void sale %d: %w", saleID, err)
	}
	if !resp.IsSuccess() {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *resty.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(resp.String()), &body); err != nil || body.Message == "" {
		body.Message = resp.Status()
	}
	return &APIError{Status: resp.StatusCode(), Message: body.Message}
}
