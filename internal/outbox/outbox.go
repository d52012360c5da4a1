// Package outbox records sale events in the same transaction as the sale and
// relays them to the message broker afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	TopicSaleCompleted = "bookstore.sales.completed"
	TopicSaleVoided    = "bookstore.sales.voided"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// SaleLineEvent is the per-line part of a sale event.
type SaleLineEvent struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// SaleEvent is published when a sale is committed or voided.
type SaleEvent struct {
	SaleID        int64           `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      int64           `json:"client_id"`
	CashierID     int64           `json:"cashier_id"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	Lines         []SaleLineEvent `json:"lines"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Insert writes an event inside tx; it becomes visible only if tx commits.
func Insert(ctx context.Context, tx pgx.Tx, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox(event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`, eventID, topic, key, data)
	return err
}

// Store reads pending events and acknowledges delivered ones.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) MarkSent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET sent_at=now() WHERE id=$1`, id)
	return err
}

func (s *postgresStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, event_id::text, topic, key, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
