package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/outbox"
	"bookstore-pos/internal/repository/inventory"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Commit(ctx context.Context, s domain.Sale) (*CommitResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, r.persistence("begin commit", err)
	}
	defer tx.Rollback(ctx)

	const insertSale = `
INSERT INTO sales (invoice_number, client_id, cashier_id, subtotal, discount, total, payment_method, notes, status, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'completed', $9)
RETURNING id, created_at
`
	err = tx.QueryRow(ctx, insertSale,
		s.InvoiceNumber,
		s.ClientID,
		s.CashierID,
		s.Subtotal,
		s.Discount,
		s.Total,
		string(s.PaymentMethod),
		s.Notes,
		nullable(s.IdempotencyKey),
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return nil, r.classifyInsert(s, err)
	}
	s.Status = domain.SaleCompleted

	res := &CommitResult{}
	event := outbox.SaleEvent{
		InvoiceNumber: s.InvoiceNumber,
		SaleID:        s.ID,
		ClientID:      s.ClientID,
		CashierID:     s.CashierID,
		Total:         s.Total,
		Status:        string(domain.SaleCompleted),
		OccurredAt:    s.CreatedAt,
	}
	for _, i := range LockOrder(s.Lines) {
		line := &s.Lines[i]
		lvl, err := inventory.Decrement(ctx, tx, line.BookID, line.Quantity)
		if err != nil {
			return nil, r.passThrough("decrement stock", err)
		}
		line.SaleID = s.ID
		line.LineNo = i + 1
		line.Title = lvl.Title
		line.LineTotal = domain.LineTotal(line.Quantity, line.UnitPrice)
		const insertLine = `
INSERT INTO sale_lines (sale_id, line_no, book_id, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`
		if err := tx.QueryRow(ctx, insertLine, s.ID, line.LineNo, line.BookID, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&line.ID); err != nil {
			return nil, r.persistence("insert sale line", err)
		}
		if _, err := inventory.Append(ctx, tx, domain.StockMovement{
			BookID:     line.BookID,
			Delta:      -line.Quantity,
			Kind:       domain.MovementSale,
			SaleID:     &s.ID,
			StockAfter: lvl.Stock,
			Note:       s.InvoiceNumber,
		}); err != nil {
			return nil, r.persistence("append sale movement", err)
		}
		if lvl.Low() {
			res.LowStock = append(res.LowStock, domain.LowStockAlert{BookID: lvl.BookID, Title: lvl.Title, Stock: lvl.Stock, MinStock: lvl.MinStock})
		}
		event.Lines = append(event.Lines, outbox.SaleLineEvent{BookID: line.BookID, Quantity: line.Quantity})
	}

	if err := outbox.Insert(ctx, tx, uuid.NewString(), outbox.TopicSaleCompleted, s.InvoiceNumber, event); err != nil {
		return nil, r.persistence("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, r.persistence("commit sale", err)
	}

	r.logger.Info("sale repo: committed",
		zap.Int64("sale_id", s.ID),
		zap.String("invoice", s.InvoiceNumber),
		zap.Int("lines", len(s.Lines)))
	res.Sale = s
	return res, nil
}

func (r *postgresRepo) Void(ctx context.Context, in VoidInput) (*domain.Sale, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, r.persistence("begin void", err)
	}
	defer tx.Rollback(ctx)

	var (
		status    string
		invoice   string
		clientID  int64
		cashierID int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx, `
SELECT status, invoice_number, client_id, cashier_id, created_at
FROM sales
WHERE id = $1
FOR UPDATE
`, in.SaleID).Scan(&status, &invoice, &clientID, &cashierID, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "sale", ID: in.SaleID}
	}
	if err != nil {
		return nil, r.persistence("lock sale", err)
	}
	if domain.SaleStatus(status) == domain.SaleVoided {
		return nil, domain.ErrAlreadyVoided
	}
	if !in.NotBefore.IsZero() && createdAt.Before(in.NotBefore) {
		return nil, domain.ErrVoidWindowElapsed
	}

	rows, err := tx.Query(ctx, `SELECT book_id, quantity FROM sale_lines WHERE sale_id = $1 ORDER BY book_id, line_no`, in.SaleID)
	if err != nil {
		return nil, r.persistence("read sale lines", err)
	}
	type restore struct {
		bookID int64
		qty    int
	}
	var restores []restore
	for rows.Next() {
		var rs restore
		if err := rows.Scan(&rs.bookID, &rs.qty); err != nil {
			rows.Close()
			return nil, r.persistence("scan sale line", err)
		}
		restores = append(restores, rs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, r.persistence("read sale lines", err)
	}

	tag, err := tx.Exec(ctx, `
UPDATE sales
SET status = 'voided', void_reason = $2, voided_by = $3, voided_at = now()
WHERE id = $1 AND status = 'completed'
`, in.SaleID, in.Reason, in.VoidedBy)
	if err != nil {
		return nil, r.persistence("mark sale voided", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrAlreadyVoided
	}

	event := outbox.SaleEvent{
		SaleID:        in.SaleID,
		InvoiceNumber: invoice,
		ClientID:      clientID,
		CashierID:     cashierID,
		Status:        string(domain.SaleVoided),
		OccurredAt:    time.Now().UTC(),
	}
	for _, rs := range restores {
		lvl, err := inventory.Increment(ctx, tx, rs.bookID, rs.qty)
		if err != nil {
			return nil, r.passThrough("restore stock", err)
		}
		if _, err := inventory.Append(ctx, tx, domain.StockMovement{
			BookID:     rs.bookID,
			Delta:      rs.qty,
			Kind:       domain.MovementVoid,
			SaleID:     &in.SaleID,
			StockAfter: lvl.Stock,
			Note:       invoice,
		}); err != nil {
			return nil, r.persistence("append void movement", err)
		}
		event.Lines = append(event.Lines, outbox.SaleLineEvent{BookID: rs.bookID, Quantity: rs.qty})
	}

	if err := outbox.Insert(ctx, tx, uuid.NewString(), outbox.TopicSaleVoided, invoice, event); err != nil {
		return nil, r.persistence("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, r.persistence("commit void", err)
	}
	r.logger.Info("sale repo: voided", zap.Int64("sale_id", in.SaleID), zap.String("invoice", invoice))

	return r.GetByID(ctx, in.SaleID)
}

const saleColumns = `id, invoice_number, client_id, cashier_id, subtotal, discount, total, payment_method, notes, status,
       COALESCE(idempotency_key, ''), void_reason, voided_by, voided_at, created_at`

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "sale", ID: id}
	}
	if err != nil {
		return nil, r.persistence("get sale", err)
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *postgresRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, r.persistence("get sale by idempotency key", err)
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *postgresRepo) List(ctx context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ClientID > 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var summary domain.SaleSummary
	err := r.pool.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE status = 'completed'),
       count(*) FILTER (WHERE status = 'voided'),
       COALESCE(sum(total) FILTER (WHERE status = 'completed'), 0)
FROM sales`+clause, args...).Scan(&summary.Count, &summary.Completed, &summary.Voided, &summary.ActiveTotal)
	if err != nil {
		return nil, summary, r.persistence("summarise sales", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales`+clause+fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)), args...)
	if err != nil {
		return nil, summary, r.persistence("list sales", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, summary, r.persistence("scan sale", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, summary, r.persistence("list sales", err)
	}
	return out, summary, nil
}

func (r *postgresRepo) loadLines(ctx context.Context, s *domain.Sale) error {
	rows, err := r.pool.Query(ctx, `
SELECT l.id, l.sale_id, l.line_no, l.book_id, b.title, l.quantity, l.unit_price, l.line_total
FROM sale_lines l
JOIN books b ON b.id = l.book_id
WHERE l.sale_id = $1
ORDER BY l.line_no
`, s.ID)
	if err != nil {
		return r.persistence("load sale lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.LineNo, &l.BookID, &l.Title, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return r.persistence("scan sale line", err)
		}
		s.Lines = append(s.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return r.persistence("load sale lines", err)
	}
	return nil
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var (
		s      domain.Sale
		method string
		status string
	)
	err := row.Scan(
		&s.ID,
		&s.InvoiceNumber,
		&s.ClientID,
		&s.CashierID,
		&s.Subtotal,
		&s.Discount,
		&s.Total,
		&method,
		&s.Notes,
		&status,
		&s.IdempotencyKey,
		&s.VoidReason,
		&s.VoidedBy,
		&s.VoidedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.PaymentMethod = domain.PaymentMethod(method)
	s.Status = domain.SaleStatus(status)
	return &s, nil
}

func (r *postgresRepo) classifyInsert(s domain.Sale, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "sales_invoice_number_key":
			r.logger.Warn("sale repo: invoice number taken", zap.String("invoice", s.InvoiceNumber))
			return fmt.Errorf("%w: %s", domain.ErrDuplicateInvoice, s.InvoiceNumber)
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "sales_idempotency_key_key":
			return domain.ErrDuplicateRequest
		}
	}
	return r.persistence("insert sale", err)
}

// passThrough keeps domain errors intact and wraps everything else.
func (r *postgresRepo) passThrough(op string, err error) error {
	var (
		stockErr    *domain.InsufficientStockError
		notFoundErr *domain.NotFoundError
	)
	if errors.As(err, &stockErr) || errors.As(err, &notFoundErr) {
		return err
	}
	return r.persistence(op, err)
}

func (r *postgresRepo) persistence(op string, err error) error {
	r.logger.Error("sale repo: "+op, zap.Error(err))
	return &domain.PersistenceError{Op: op, Err: err}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
