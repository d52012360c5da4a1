package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/metrics"
	salerepo "bookstore-pos/internal/repository/sale"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxInvoiceAttempts bounds retries after an invoice number collision.
const maxInvoiceAttempts = 5

type saleRepo interface {
	Commit(ctx context.Context, s domain.Sale) (*salerepo.CommitResult, error)
	Void(ctx context.Context, in salerepo.VoidInput) (*domain.Sale, error)
	GetByID(ctx context.Context, id int64) (*domain.Sale, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	List(ctx context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error)
}

type clientDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
}

type invoiceGenerator interface {
	Next(ctx context.Context) (string, error)
}

type Options struct {
	// VoidWindow limits how old a sale may be when voided. Zero means unlimited.
	VoidWindow time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Service struct {
	repo       saleRepo
	clients    clientDirectory
	invoices   invoiceGenerator
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	voidWindow time.Duration
}

func New(repo saleRepo, clients clientDirectory, invoices invoiceGenerator, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:       repo,
		clients:    clients,
		invoices:   invoices,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		voidWindow: opts.VoidWindow,
	}
}

type ItemInput struct {
	BookID    int64           `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SubmitInput struct {
	ClientID       int64
	CashierID      int64
	Items          []ItemInput
	Discount       decimal.Decimal
	PaymentMethod  domain.PaymentMethod
	Notes          string
	IdempotencyKey string
}

// Receipt confirms a committed sale. Replayed is set when an earlier
// submission with the same idempotency key is returned instead.
type Receipt struct {
	SaleID        int64                  `json:"sale_id"`
	InvoiceNumber string                 `json:"invoice_number"`
	Subtotal      decimal.Decimal        `json:"subtotal"`
	Discount      decimal.Decimal        `json:"discount"`
	Total         decimal.Decimal        `json:"total"`
	LowStock      []domain.LowStockAlert `json:"low_stock,omitempty"`
	Replayed      bool                   `json:"replayed,omitempty"`
}

// Submit validates a cart submission and records it atomically: header,
// lines, stock decrements, ledger entries and the outbox event commit
// together or not at all.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Receipt, error) {
	start := s.now()

	sale, err := buildSale(in)
	if err != nil {
		s.metrics.SaleFailed("validation")
		return nil, err
	}

	if in.IdempotencyKey != "" {
		if prior, err := s.replay(ctx, sale); prior != nil || err != nil {
			return prior, err
		}
	}

	if _, err := s.clients.GetByID(ctx, in.ClientID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.SaleFailed("unknown_client")
			return nil, &domain.NotFoundError{Entity: "client", ID: in.ClientID}
		}
		s.logger.Error("resolve client", zap.Int64("client_id", in.ClientID), zap.Error(err))
		s.metrics.SaleFailed("persistence")
		return nil, &domain.PersistenceError{Op: "resolve client", Err: err}
	}

	for attempt := 1; attempt <= maxInvoiceAttempts; attempt++ {
		number, err := s.invoices.Next(ctx)
		if err != nil {
			s.logger.Error("allocate invoice number", zap.Error(err))
			s.metrics.SaleFailed("persistence")
			return nil, &domain.PersistenceError{Op: "allocate invoice number", Err: err}
		}
		sale.InvoiceNumber = number

		res, err := s.repo.Commit(ctx, sale)
		switch {
		case err == nil:
			s.metrics.SaleCommitted(s.now().Sub(start))
			s.logger.Info("sale committed",
				zap.Int64("sale_id", res.Sale.ID),
				zap.String("invoice", res.Sale.InvoiceNumber),
				zap.Int64("client_id", res.Sale.ClientID),
				zap.Int64("cashier_id", res.Sale.CashierID),
				zap.String("total", res.Sale.Total.StringFixed(2)))
			return receiptOf(res.Sale, res.LowStock), nil
		case errors.Is(err, domain.ErrDuplicateInvoice):
			s.metrics.InvoiceRetry()
			s.logger.Warn("invoice number collision, retrying", zap.String("invoice", number), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, domain.ErrDuplicateRequest):
			if prior, rerr := s.replay(ctx, sale); prior != nil || rerr != nil {
				return prior, rerr
			}
			return nil, domain.ErrDuplicateRequest
		default:
			return nil, s.failure(err)
		}
	}
	s.metrics.SaleFailed("persistence")
	return nil, &domain.PersistenceError{
		Op:  "allocate invoice number",
		Err: fmt.Errorf("%w after %d attempts", domain.ErrDuplicateInvoice, maxInvoiceAttempts),
	}
}

type VoidInput struct {
	SaleID    int64
	CashierID int64
	Reason    string
}

// Void moves a completed sale to voided and returns every line's quantity
// to stock. Voiding is irreversible.
func (s *Service) Void(ctx context.Context, in VoidInput) (*domain.Sale, error) {
	if in.SaleID <= 0 {
		return nil, domain.Invalid("sale_id", "required")
	}
	if in.CashierID <= 0 {
		return nil, domain.Invalid("cashier_id", "required")
	}
	var notBefore time.Time
	if s.voidWindow > 0 {
		notBefore = s.now().Add(-s.voidWindow)
	}
	sale, err := s.repo.Void(ctx, salerepo.VoidInput{
		SaleID:    in.SaleID,
		VoidedBy:  in.CashierID,
		Reason:    strings.TrimSpace(in.Reason),
		NotBefore: notBefore,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyVoided) || errors.Is(err, domain.ErrVoidWindowElapsed) {
			s.logger.Info("void rejected", zap.Int64("sale_id", in.SaleID), zap.Error(err))
			return nil, err
		}
		return nil, s.persistenceFailure("void sale", err)
	}
	s.metrics.SaleVoided()
	s.logger.Info("sale voided",
		zap.Int64("sale_id", sale.ID),
		zap.String("invoice", sale.InvoiceNumber),
		zap.Int64("voided_by", in.CashierID))
	return sale, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error) {
	if f.Status != "" && f.Status != domain.SaleCompleted && f.Status != domain.SaleVoided {
		return nil, domain.SaleSummary{}, domain.Invalid("status", "must be completed or voided")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, domain.SaleSummary{}, domain.Invalid("to", "must not precede from")
	}
	return s.repo.List(ctx, f)
}

// replay returns the receipt of the sale already recorded under the
// submission's idempotency key. A key reused for a different submission is
// rejected with ErrDuplicateRequest.
func (s *Service) replay(ctx context.Context, sub domain.Sale) (*Receipt, error) {
	prior, err := s.repo.GetByIdempotencyKey(ctx, sub.IdempotencyKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.persistenceFailure("lookup idempotency key", err)
	}
	if !sameSubmission(*prior, sub) {
		s.logger.Warn("idempotency key reused for a different sale",
			zap.Int64("sale_id", prior.ID),
			zap.Int64("cashier_id", sub.CashierID))
		s.metrics.SaleFailed("duplicate_request")
		return nil, domain.ErrDuplicateRequest
	}
	s.logger.Info("replaying sale for idempotency key", zap.Int64("sale_id", prior.ID), zap.String("invoice", prior.InvoiceNumber))
	r := receiptOf(*prior, nil)
	r.Replayed = true
	return r, nil
}

// sameSubmission compares the fields a client sends; server-assigned fields
// are ignored.
func sameSubmission(prior, sub domain.Sale) bool {
	if prior.ClientID != sub.ClientID ||
		prior.CashierID != sub.CashierID ||
		prior.PaymentMethod != sub.PaymentMethod ||
		prior.Notes != sub.Notes ||
		!prior.Discount.Equal(sub.Discount) ||
		len(prior.Lines) != len(sub.Lines) {
		return false
	}
	for i, l := range sub.Lines {
		p := prior.Lines[i]
		if p.BookID != l.BookID || p.Quantity != l.Quantity || !p.UnitPrice.Equal(l.UnitPrice) {
			return false
		}
	}
	return true
}

func (s *Service) failure(err error) error {
	var (
		stockErr    *domain.InsufficientStockError
		notFoundErr *domain.NotFoundError
	)
	switch {
	case errors.As(err, &stockErr):
		s.metrics.SaleFailed("insufficient_stock")
		s.logger.Info("sale rejected: insufficient stock",
			zap.Int64("book_id", stockErr.BookID),
			zap.Int("requested", stockErr.Requested),
			zap.Int("available", stockErr.Available))
		return err
	case errors.As(err, &notFoundErr):
		s.metrics.SaleFailed("not_found")
		s.logger.Info("sale rejected: unknown reference", zap.String("entity", notFoundErr.Entity), zap.Int64("id", notFoundErr.ID))
		return err
	default:
		s.metrics.SaleFailed("persistence")
		return s.persistenceFailure("commit sale", err)
	}
}

func (s *Service) persistenceFailure(op string, err error) error {
	var pErr *domain.PersistenceError
	if !errors.As(err, &pErr) {
		pErr = &domain.PersistenceError{Op: op, Err: err}
	}
	s.logger.Error("sale persistence failure", zap.String("op", pErr.Op), zap.Error(pErr.Err))
	return pErr
}

// buildSale validates the input and computes exact totals.
func buildSale(in SubmitInput) (domain.Sale, error) {
	if in.ClientID <= 0 {
		return domain.Sale{}, domain.Invalid("client_id", "required")
	}
	if in.CashierID <= 0 {
		return domain.Sale{}, domain.Invalid("cashier_id", "required")
	}
	if len(in.Items) == 0 {
		return domain.Sale{}, domain.Invalid("items", "at least one item is required")
	}
	method := in.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	if !method.Valid() {
		return domain.Sale{}, domain.Invalid("payment_method", fmt.Sprintf("unsupported method %q", in.PaymentMethod))
	}

	sale := domain.Sale{
		ClientID:       in.ClientID,
		CashierID:      in.CashierID,
		PaymentMethod:  method,
		Notes:          strings.TrimSpace(in.Notes),
		IdempotencyKey: in.IdempotencyKey,
		Lines:          make([]domain.SaleLine, 0, len(in.Items)),
	}
	subtotal := decimal.Zero
	for i, item := range in.Items {
		if item.BookID <= 0 {
			return domain.Sale{}, domain.Invalid(fmt.Sprintf("items[%d].book_id", i), "required")
		}
		if item.Quantity <= 0 {
			return domain.Sale{}, domain.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return domain.Sale{}, domain.Invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		if !domain.WholeCents(item.UnitPrice) {
			return domain.Sale{}, domain.Invalid(fmt.Sprintf("items[%d].unit_price", i), "at most 2 decimal places")
		}
		lineTotal := domain.LineTotal(item.Quantity, item.UnitPrice)
		sale.Lines = append(sale.Lines, domain.SaleLine{
			LineNo:    i + 1,
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}
	if in.Discount.IsNegative() {
		return domain.Sale{}, domain.Invalid("discount", "must not be negative")
	}
	if !domain.WholeCents(in.Discount) {
		return domain.Sale{}, domain.Invalid("discount", "at most 2 decimal places")
	}
	if in.Discount.GreaterThan(subtotal) {
		return domain.Sale{}, domain.Invalid("discount", "exceeds subtotal")
	}
	sale.Subtotal = subtotal
	sale.Discount = in.Discount
	sale.Total = subtotal.Sub(in.Discount)
	return sale, nil
}

func receiptOf(s domain.Sale, low []domain.LowStockAlert) *Receipt {
	return &Receipt{
		SaleID:        s.ID,
		InvoiceNumber: s.InvoiceNumber,
		Subtotal:      s.Subtotal,
		Discount:      s.Discount,
		Total:         s.Total,
		LowStock:      low,
	}
}
