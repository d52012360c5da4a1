package inventory

import (
	"context"

	"bookstore-pos/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

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

func (r *postgresRepo) Movements(ctx context.Context, bookID int64, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, book_id, delta, kind, sale_id, stock_after, note, created_at
FROM stock_movements
WHERE book_id = $1
ORDER BY id DESC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, q, bookID, limit)
	if err != nil {
		r.logger.Error("inventory repo: movements", zap.Int64("book_id", bookID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		var (
			m    domain.StockMovement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.BookID, &m.Delta, &kind, &m.SaleID, &m.StockAfter, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = domain.MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Discrepancies(ctx context.Context) ([]domain.Discrepancy, error) {
	const q = `
SELECT b.id, b.title, b.stock, COALESCE(SUM(m.delta), 0)::int AS ledger_stock
FROM books b
LEFT JOIN stock_movements m ON m.book_id = b.id
GROUP BY b.id, b.title, b.stock
HAVING b.stock <> COALESCE(SUM(m.delta), 0)
ORDER BY b.id
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		r.logger.Error("inventory repo: discrepancies", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []domain.Discrepancy
	for rows.Next() {
		var d domain.Discrepancy
		if err := rows.Scan(&d.BookID, &d.Title, &d.Stock, &d.LedgerStock); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Restock(ctx context.Context, in RestockInput) (*domain.StockMovement, error) {
	if in.Quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be positive")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	lvl, err := Increment(ctx, tx, in.BookID, in.Quantity)
	if err != nil {
		return nil, err
	}
	m := domain.StockMovement{
		BookID:     in.BookID,
		Delta:      in.Quantity,
		Kind:       domain.MovementRestock,
		StockAfter: lvl.Stock,
		Note:       in.Note,
	}
	if m.ID, err = Append(ctx, tx, m); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("inventory repo: restocked",
		zap.Int64("book_id", in.BookID),
		zap.Int("quantity", in.Quantity),
		zap.Int("stock_after", lvl.Stock))
	return &m, nil
}
