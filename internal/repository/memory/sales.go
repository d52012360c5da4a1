package memory

import (
	"context"
	"fmt"
	"sort"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/outbox"
	salerepo "bookstore-pos/internal/repository/sale"
)

type saleView struct{ s *Store }

func (v saleView) Commit(_ context.Context, sale domain.Sale) (*salerepo.CommitResult, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.invoices[sale.InvoiceNumber]; taken {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateInvoice, sale.InvoiceNumber)
	}
	if sale.IdempotencyKey != "" {
		if _, seen := s.idemKeys[sale.IdempotencyKey]; seen {
			return nil, domain.ErrDuplicateRequest
		}
	}

	// Stock changes are staged against a snapshot and restored on any failure.
	before := make(map[int64]domain.Book)
	rollback := func() {
		for id, b := range before {
			s.books[id] = b
		}
	}
	failAfter, failErr := s.failAfter, s.failErr
	s.failAfter, s.failErr = 0, nil

	s.nextSale++
	sale.ID = s.nextSale
	sale.Status = domain.SaleCompleted
	sale.CreatedAt = s.now()
	sale.Lines = append([]domain.SaleLine(nil), sale.Lines...)

	res := &salerepo.CommitResult{}
	var staged []domain.StockMovement
	for n, i := range salerepo.LockOrder(sale.Lines) {
		if failErr != nil && n == failAfter {
			rollback()
			return nil, &domain.PersistenceError{Op: "insert sale line", Err: failErr}
		}
		line := &sale.Lines[i]
		b, ok := s.books[line.BookID]
		if !ok {
			rollback()
			return nil, &domain.NotFoundError{Entity: "book", ID: line.BookID}
		}
		available := b.Stock
		if b.Status != domain.BookActive {
			available = 0
		}
		if available < line.Quantity {
			rollback()
			return nil, &domain.InsufficientStockError{BookID: b.ID, Title: b.Title, Requested: line.Quantity, Available: available}
		}
		if _, saved := before[b.ID]; !saved {
			before[b.ID] = b
		}
		b.Stock -= line.Quantity
		b.UpdatedAt = sale.CreatedAt
		s.books[b.ID] = b

		s.nextLine++
		line.ID = s.nextLine
		line.SaleID = sale.ID
		line.LineNo = i + 1
		line.Title = b.Title
		line.LineTotal = domain.LineTotal(line.Quantity, line.UnitPrice)
		saleID := sale.ID
		staged = append(staged, domain.StockMovement{BookID: b.ID, Delta: -line.Quantity, Kind: domain.MovementSale, SaleID: &saleID, StockAfter: b.Stock, Note: sale.InvoiceNumber})
		if b.Stock <= b.MinStock {
			res.LowStock = append(res.LowStock, domain.LowStockAlert{BookID: b.ID, Title: b.Title, Stock: b.Stock, MinStock: b.MinStock})
		}
	}

	event := saleEvent(sale)
	if err := s.appendEvent(outbox.TopicSaleCompleted, sale.InvoiceNumber, event); err != nil {
		rollback()
		return nil, &domain.PersistenceError{Op: "insert outbox event", Err: err}
	}
	for _, m := range staged {
		s.appendMovement(m)
	}
	s.sales[sale.ID] = sale
	s.invoices[sale.InvoiceNumber] = sale.ID
	if sale.IdempotencyKey != "" {
		s.idemKeys[sale.IdempotencyKey] = sale.ID
	}
	res.Sale = cloneSale(sale)
	return res, nil
}

func (v saleView) Void(_ context.Context, in salerepo.VoidInput) (*domain.Sale, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[in.SaleID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "sale", ID: in.SaleID}
	}
	if sale.Status == domain.SaleVoided {
		return nil, domain.ErrAlreadyVoided
	}
	if !in.NotBefore.IsZero() && sale.CreatedAt.Before(in.NotBefore) {
		return nil, domain.ErrVoidWindowElapsed
	}

	now := s.now()
	for _, i := range salerepo.LockOrder(sale.Lines) {
		line := sale.Lines[i]
		b := s.books[line.BookID]
		b.Stock += line.Quantity
		b.UpdatedAt = now
		s.books[b.ID] = b
		saleID := sale.ID
		s.appendMovement(domain.StockMovement{BookID: b.ID, Delta: line.Quantity, Kind: domain.MovementVoid, SaleID: &saleID, StockAfter: b.Stock, Note: sale.InvoiceNumber})
	}
	voidedBy := in.VoidedBy
	sale.Status = domain.SaleVoided
	sale.VoidReason = in.Reason
	sale.VoidedBy = &voidedBy
	sale.VoidedAt = &now
	s.sales[sale.ID] = sale

	event := saleEvent(sale)
	event.OccurredAt = now
	if err := s.appendEvent(outbox.TopicSaleVoided, sale.InvoiceNumber, event); err != nil {
		return nil, &domain.PersistenceError{Op: "insert outbox event", Err: err}
	}
	out := cloneSale(sale)
	return &out, nil
}

func (v saleView) GetByID(_ context.Context, id int64) (*domain.Sale, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	sale, ok := v.s.sales[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "sale", ID: id}
	}
	out := cloneSale(sale)
	return &out, nil
}

func (v saleView) GetByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.idemKeys[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneSale(v.s.sales[id])
	return &out, nil
}

func (v saleView) List(_ context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var (
		matched []domain.Sale
		summary domain.SaleSummary
	)
	for _, sale := range v.s.sales {
		if f.Status != "" && sale.Status != f.Status {
			continue
		}
		if f.ClientID > 0 && sale.ClientID != f.ClientID {
			continue
		}
		if !f.From.IsZero() && sale.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !sale.CreatedAt.Before(f.To) {
			continue
		}
		summary.Count++
		if sale.Status == domain.SaleVoided {
			summary.Voided++
		} else {
			summary.Completed++
			summary.ActiveTotal = summary.ActiveTotal.Add(sale.Total)
		}
		header := sale
		header.Lines = nil
		matched = append(matched, header)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, summary, nil
}

func saleEvent(sale domain.Sale) outbox.SaleEvent {
	e := outbox.SaleEvent{
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		ClientID:      sale.ClientID,
		CashierID:     sale.CashierID,
		Total:         sale.Total,
		Status:        string(sale.Status),
		OccurredAt:    sale.CreatedAt,
	}
	for _, l := range sale.Lines {
		e.Lines = append(e.Lines, outbox.SaleLineEvent{BookID: l.BookID, Quantity: l.Quantity})
	}
	return e
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	return sale
}
