package sale

import (
	"context"
	"sort"
	"time"

	"bookstore-pos/internal/domain"
)

// CommitResult is what a successful commit reports back.
type CommitResult struct {
	Sale     domain.Sale
	LowStock []domain.LowStockAlert
}

// VoidInput identifies the sale to void and who voids it. A non-zero
// NotBefore rejects sales created before that instant.
type VoidInput struct {
	SaleID    int64
	VoidedBy  int64
	Reason    string
	NotBefore time.Time
}

// Repository persists sales. Commit and Void are all-or-nothing: the sale
// rows, the stock counters, the ledger and the outbox change together or
// not at all.
type Repository interface {
	Commit(ctx context.Context, s domain.Sale) (*CommitResult, error)
	Void(ctx context.Context, in VoidInput) (*domain.Sale, error)
	GetByID(ctx context.Context, id int64) (*domain.Sale, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	List(ctx context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error)
}

// LockOrder returns line indexes sorted by book id. Touching books in one
// global order keeps concurrent commits and voids from deadlocking.
func LockOrder(lines []domain.SaleLine) []int {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lines[order[a]].BookID < lines[order[b]].BookID
	})
	return order
}
