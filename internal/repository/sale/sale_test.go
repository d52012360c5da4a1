package sale

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/testdb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type fixture struct {
	pool     *pgxpool.Pool
	repo     Repository
	clientID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	pool := testdb.Pool(ctx, t)
	f := &fixture{pool: pool, repo: NewPostgres(pool, nil)}
	if err := pool.QueryRow(ctx, `INSERT INTO clients (name, email) VALUES ('Budi', 'budi@example.com') RETURNING id`).Scan(&f.clientID); err != nil {
		t.Fatalf("insert client: %v", err)
	}
	return f
}

// book inserts a book and a matching restock movement so the ledger balances.
func (f *fixture) book(t *testing.T, title string, price int64, stock, minStock int) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := f.pool.QueryRow(ctx, `INSERT INTO books (isbn, title, price, stock, min_stock) VALUES ($1, $1, $2, $3, $4) RETURNING id`,
		title, price, stock, minStock).Scan(&id)
	if err != nil {
		t.Fatalf("insert book: %v", err)
	}
	if stock > 0 {
		if _, err := f.pool.Exec(ctx, `INSERT INTO stock_movements (book_id, delta, kind, stock_after) VALUES ($1, $2, 'restock', $2)`, id, stock); err != nil {
			t.Fatalf("insert movement: %v", err)
		}
	}
	return id
}

func (f *fixture) stock(t *testing.T, bookID int64) int {
	t.Helper()
	var stock int
	if err := f.pool.QueryRow(context.Background(), `SELECT stock FROM books WHERE id = $1`, bookID).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(context.Background(), `SELECT count(*) FROM `+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func (f *fixture) sale(invoice string, lines ...domain.SaleLine) domain.Sale {
	sum := decimal.Zero
	for i := range lines {
		lines[i].LineTotal = domain.LineTotal(lines[i].Quantity, lines[i].UnitPrice)
		sum = sum.Add(lines[i].LineTotal)
	}
	return domain.Sale{
		InvoiceNumber: invoice,
		ClientID:      f.clientID,
		CashierID:     1,
		Subtotal:      sum,
		Discount:      decimal.Zero,
		Total:         sum,
		PaymentMethod: domain.PaymentCash,
		Lines:         lines,
	}
}

func line(bookID int64, qty int, price int64) domain.SaleLine {
	return domain.SaleLine{BookID: bookID, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}

func TestPostgres_CommitDecrementsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 7, 2)
	y := f.book(t, "Bumi Manusia", 23000, 5, 4)

	res, err := f.repo.Commit(ctx, f.sale("INV-202405170001", line(x, 2, 25000), line(y, 1, 23000)))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !res.Sale.Total.Equal(decimal.NewFromInt(73000)) {
		t.Fatalf("unexpected total %s", res.Sale.Total)
	}
	if f.stock(t, x) != 5 || f.stock(t, y) != 4 {
		t.Fatalf("unexpected stock x=%d y=%d", f.stock(t, x), f.stock(t, y))
	}
	if len(res.LowStock) != 1 || res.LowStock[0].BookID != y {
		t.Fatalf("expected low stock alert for y, got %+v", res.LowStock)
	}
	if f.count(t, "outbox") != 1 {
		t.Fatalf("expected one outbox event")
	}

	got, err := f.repo.GetByID(ctx, res.Sale.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].Title != "Laskar Pelangi" || got.Status != domain.SaleCompleted {
		t.Fatalf("unexpected sale %+v", got)
	}
}

func TestPostgres_CommitInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 7, 0)
	z := f.book(t, "Ronggeng Dukuh Paruk", 40000, 1, 0)

	_, err := f.repo.Commit(ctx, f.sale("INV-1", line(x, 1, 25000), line(z, 2, 40000)))
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.BookID != z || stockErr.Available != 1 {
		t.Fatalf("expected insufficient stock on z, got %v", err)
	}
	if f.stock(t, x) != 7 || f.stock(t, z) != 1 {
		t.Fatalf("stock changed after rollback")
	}
	for _, table := range []string{"sales", "sale_lines", "outbox"} {
		if n := f.count(t, table); n != 0 {
			t.Fatalf("expected no rows in %s, got %d", table, n)
		}
	}
}

func TestPostgres_CommitClassifiesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 10, 0)

	first := f.sale("INV-1", line(x, 1, 25000))
	first.IdempotencyKey = "till-1"
	if _, err := f.repo.Commit(ctx, first); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := f.repo.Commit(ctx, f.sale("INV-1", line(x, 1, 25000))); !errors.Is(err, domain.ErrDuplicateInvoice) {
		t.Fatalf("expected duplicate invoice, got %v", err)
	}
	again := f.sale("INV-2", line(x, 1, 25000))
	again.IdempotencyKey = "till-1"
	if _, err := f.repo.Commit(ctx, again); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected duplicate request, got %v", err)
	}
	if f.stock(t, x) != 9 {
		t.Fatalf("only the first sale may move stock, got %d", f.stock(t, x))
	}

	prior, err := f.repo.GetByIdempotencyKey(ctx, "till-1")
	if err != nil || prior.InvoiceNumber != "INV-1" {
		t.Fatalf("GetByIdempotencyKey: %+v %v", prior, err)
	}
}

func TestPostgres_CommitAcceptsClientOutsideLocalTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 3, 0)

	remote := f.sale("INV-1", line(x, 1, 25000))
	remote.ClientID = 4242
	res, err := f.repo.Commit(ctx, remote)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Sale.ClientID != 4242 || f.stock(t, x) != 2 {
		t.Fatalf("unexpected commit result %+v stock=%d", res.Sale, f.stock(t, x))
	}
}

func TestPostgres_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	last := f.book(t, "Cantik Itu Luka", 90000, 1, 0)

	const buyers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, buyers)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.repo.Commit(ctx, f.sale(fmt.Sprintf("INV-%d", i), line(last, 1, 90000)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		var stockErr *domain.InsufficientStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &stockErr):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one sale, got %d", succeeded)
	}
	if f.stock(t, last) != 0 {
		t.Fatalf("expected stock 0, got %d", f.stock(t, last))
	}
}

func TestPostgres_VoidRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 7, 0)
	y := f.book(t, "Bumi Manusia", 23000, 5, 0)
	res, err := f.repo.Commit(ctx, f.sale("INV-1", line(y, 1, 23000), line(x, 2, 25000)))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	voided, err := f.repo.Void(ctx, VoidInput{SaleID: res.Sale.ID, VoidedBy: 9, Reason: "returned"})
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if voided.Status != domain.SaleVoided || voided.VoidedBy == nil || *voided.VoidedBy != 9 {
		t.Fatalf("unexpected voided sale %+v", voided)
	}
	if f.stock(t, x) != 7 || f.stock(t, y) != 5 {
		t.Fatalf("stock not restored")
	}

	if _, err := f.repo.Void(ctx, VoidInput{SaleID: res.Sale.ID, VoidedBy: 9}); !errors.Is(err, domain.ErrAlreadyVoided) {
		t.Fatalf("expected already voided, got %v", err)
	}
	if f.stock(t, x) != 7 {
		t.Fatalf("second void must not change stock")
	}

	var mismatched int
	err = f.pool.QueryRow(ctx, `
SELECT count(*) FROM books b
WHERE b.stock <> (SELECT COALESCE(SUM(delta), 0) FROM stock_movements m WHERE m.book_id = b.id)`).Scan(&mismatched)
	if err != nil || mismatched != 0 {
		t.Fatalf("ledger out of balance: %d (%v)", mismatched, err)
	}
}

func TestPostgres_VoidChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 7, 0)
	res, err := f.repo.Commit(ctx, f.sale("INV-1", line(x, 1, 25000)))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := f.repo.Void(ctx, VoidInput{SaleID: 999, VoidedBy: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = f.repo.Void(ctx, VoidInput{SaleID: res.Sale.ID, VoidedBy: 1, NotBefore: time.Now().Add(time.Hour)})
	if !errors.Is(err, domain.ErrVoidWindowElapsed) {
		t.Fatalf("expected window elapsed, got %v", err)
	}
	if f.stock(t, x) != 6 {
		t.Fatalf("rejected void must not change stock")
	}
}

func TestPostgres_ListSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.book(t, "Laskar Pelangi", 25000, 10, 0)
	a, err := f.repo.Commit(ctx, f.sale("INV-1", line(x, 1, 25000)))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := f.repo.Commit(ctx, f.sale("INV-2", line(x, 2, 25000))); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := f.repo.Void(ctx, VoidInput{SaleID: a.Sale.ID, VoidedBy: 1}); err != nil {
		t.Fatalf("Void: %v", err)
	}

	sales, summary, err := f.repo.List(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sales) != 2 || summary.Count != 2 || summary.Voided != 1 || summary.Completed != 1 {
		t.Fatalf("unexpected listing %d %+v", len(sales), summary)
	}
	if !summary.ActiveTotal.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("voided sales must not count toward the active total, got %s", summary.ActiveTotal)
	}

	voided, _, err := f.repo.List(ctx, domain.SaleFilter{Status: domain.SaleVoided})
	if err != nil || len(voided) != 1 || voided[0].ID != a.Sale.ID {
		t.Fatalf("status filter: %+v %v", voided, err)
	}
}
