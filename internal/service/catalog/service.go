package catalog

import (
	"context"
	"strings"

	"bookstore-pos/internal/cart"
	"bookstore-pos/internal/domain"
	bookrepo "bookstore-pos/internal/repository/book"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"go.uber.org/zap"
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

type Service struct {
	books     bookrepo.Repository
	inventory inventoryrepo.Repository
	logger    *zap.Logger
}

func New(books bookrepo.Repository, inventory inventoryrepo.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{books: books, inventory: inventory, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Book, error) {
	if id <= 0 {
		return nil, domain.Invalid("id", "must be positive")
	}
	return s.books.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f bookrepo.ListFilter) ([]domain.Book, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.Invalid("status", "must be active or inactive")
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.books.List(ctx, f)
}

// Product resolves a book into the snapshot a cart line is built from.
// Inactive or sold-out books cannot be added.
func (s *Service) Product(ctx context.Context, id int64) (cart.Product, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return cart.Product{}, err
	}
	if !b.Sellable() {
		return cart.Product{}, &domain.InsufficientStockError{BookID: b.ID, Title: b.Title, Requested: 1, Available: 0}
	}
	return cart.ProductFromBook(*b), nil
}

func (s *Service) Movements(ctx context.Context, bookID int64, limit int) ([]domain.StockMovement, error) {
	if _, err := s.Get(ctx, bookID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultMovementLimit
	case limit > maxMovementLimit:
		limit = maxMovementLimit
	}
	return s.inventory.Movements(ctx, bookID, limit)
}

// Discrepancies reports books whose stock counter disagrees with the ledger.
func (s *Service) Discrepancies(ctx context.Context) ([]domain.Discrepancy, error) {
	out, err := s.inventory.Discrepancies(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range out {
		s.logger.Warn("stock ledger discrepancy",
			zap.Int64("book_id", d.BookID),
			zap.Int("stock", d.Stock),
			zap.Int("ledger_stock", d.LedgerStock))
	}
	return out, nil
}

// Restock records received units as a ledger movement and raises stock.
func (s *Service) Restock(ctx context.Context, in inventoryrepo.RestockInput) (*domain.StockMovement, error) {
	if in.BookID <= 0 {
		return nil, domain.Invalid("book_id", "required")
	}
	if in.Quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be positive")
	}
	in.Note = strings.TrimSpace(in.Note)
	m, err := s.inventory.Restock(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("book restocked", zap.Int64("book_id", in.BookID), zap.Int("quantity", in.Quantity), zap.Int("stock_after", m.StockAfter))
	return m, nil
}
