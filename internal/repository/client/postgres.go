package client

import (
	"context"
	"errors"
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

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	const q = `
SELECT id, name, email, phone, created_at
FROM clients
WHERE id = $1
`
	c, err := r.scanClient(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.NotFoundError{Entity: "client", ID: id}
	}
	return c, err
}

func (r *postgresRepo) List(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, phone, created_at FROM clients ORDER BY name, id`)
	if err != nil {
		r.logger.Error("client repo: list", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := r.scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Upsert(ctx context.Context, c domain.Client) (*domain.Client, error) {
	const q = `
INSERT INTO clients (name, email, phone)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET
    name = EXCLUDED.name,
    phone = EXCLUDED.phone
RETURNING id, name, email, phone, created_at
`
	return r.scanClient(r.pool.QueryRow(ctx, q, c.Name, strings.ToLower(strings.TrimSpace(c.Email)), c.Phone))
}

func (r *postgresRepo) scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("client repo: scan", zap.Error(err))
		return nil, err
	}
	return &c, nil
}
