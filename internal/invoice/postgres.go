package invoice

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresSequencer struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Sequencer backed by the invoice_counters table.
// Each call commits on its own, outside any sale transaction, so a rolled
// back sale leaves a gap instead of a reusable number.
func NewPostgres(pool *pgxpool.Pool) Sequencer {
	return &postgresSequencer{pool: pool}
}

func (s *postgresSequencer) Next(ctx context.Context, day time.Time) (int, error) {
	const q = `
INSERT INTO invoice_counters (day, last_seq)
VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET last_seq = invoice_counters.last_seq + 1
RETURNING last_seq
`
	var n int
	if err := s.pool.QueryRow(ctx, q, day).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
