package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleVoided    SaleStatus = "voided"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentEWallet  PaymentMethod = "e-wallet"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentEWallet:
		return true
	}
	return false
}

// Sale is a committed sale header. Total always equals Subtotal minus Discount
// and Subtotal equals the sum of the line totals.
type Sale struct {
	ID             int64           `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ClientID       int64           `json:"client_id"`
	CashierID      int64           `json:"cashier_id"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Notes          string          `json:"notes,omitempty"`
	Status         SaleStatus      `json:"status"`
	IdempotencyKey string          `json:"-"`
	VoidReason     string          `json:"void_reason,omitempty"`
	VoidedBy       *int64          `json:"voided_by,omitempty"`
	VoidedAt       *time.Time      `json:"voided_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []SaleLine      `json:"lines,omitempty"`
}

// SaleLine is one immutable line of a committed sale.
type SaleLine struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	LineNo    int             `json:"line_no"`
	BookID    int64           `json:"book_id"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// MoneyScale is the number of decimal places stored for every amount.
const MoneyScale = 2

// WholeCents reports whether d fits the stored money scale without rounding.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// LineTotal returns quantity × unit price.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// SaleFilter narrows sale listings. Zero values mean "no filter".
type SaleFilter struct {
	Status   SaleStatus
	ClientID int64
	From     time.Time
	To       time.Time
	Limit    int
}

// SaleSummary aggregates a filtered listing. Voided sales are counted but
// excluded from ActiveTotal.
type SaleSummary struct {
	Count       int             `json:"count"`
	Completed   int             `json:"completed"`
	Voided      int             `json:"voided"`
	ActiveTotal decimal.Decimal `json:"active_total"`
}
