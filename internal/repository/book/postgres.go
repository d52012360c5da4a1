package book

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const bookColumns = `id, isbn, title, author, price, stock, min_stock, status, created_at, updated_at`

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "book", ID: id}
		}
		r.logger.Error("book repo: get", zap.Int64("book_id", id), zap.Error(err))
		return nil, err
	}
	return b, nil
}

func (r *postgresRepo) GetByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1`, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("book repo: get by isbn", zap.String("isbn", isbn), zap.Error(err))
		return nil, err
	}
	return b, nil
}

func (r *postgresRepo) List(ctx context.Context, f ListFilter) ([]domain.Book, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.LowStock {
		where = append(where, "stock <= min_stock")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%[1]d OR author ILIKE $%[1]d OR isbn ILIKE $%[1]d)", len(args)))
	}
	q := `SELECT ` + bookColumns + ` FROM books`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY title, id"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("book repo: list", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("book repo: list rows", zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, b domain.Book) (*domain.Book, error) {
	if b.Status == "" {
		b.Status = domain.BookActive
	}
	const q = `
INSERT INTO books (isbn, title, author, price, min_stock, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (isbn) DO UPDATE SET
    title = EXCLUDED.title,
    author = EXCLUDED.author,
    price = EXCLUDED.price,
    min_stock = EXCLUDED.min_stock,
    status = EXCLUDED.status,
    updated_at = now()
RETURNING ` + bookColumns
	res, err := scanBook(r.pool.QueryRow(ctx, q, b.ISBN, b.Title, b.Author, b.Price, b.MinStock, string(b.Status)))
	if err != nil {
		r.logger.Error("book repo: upsert", zap.String("isbn", b.ISBN), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("book repo: upserted", zap.String("isbn", res.ISBN), zap.Int64("book_id", res.ID))
	return res, nil
}

func scanBook(row pgx.Row) (*domain.Book, error) {
	var (
		b      domain.Book
		status string
	)
	if err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Price, &b.Stock, &b.MinStock, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = domain.BookStatus(status)
	return &b, nil
}
