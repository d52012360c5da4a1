// Package memory implements every repository on process memory behind one
// mutex. It backs STORAGE=memory and the service tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/outbox"
	bookrepo "bookstore-pos/internal/repository/book"
	clientrepo "bookstore-pos/internal/repository/client"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	salerepo "bookstore-pos/internal/repository/sale"
	"github.com/google/uuid"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	books     map[int64]domain.Book
	isbn      map[string]int64
	clients   map[int64]domain.Client
	emails    map[string]int64
	sales     map[int64]domain.Sale
	invoices  map[string]int64
	idemKeys  map[string]int64
	movements []domain.StockMovement
	events    []outbox.Record

	nextBook, nextClient, nextSale, nextLine, nextMovement, nextEvent int64

	failAfter int
	failErr   error
}

func New() *Store {
	return &Store{
		now:      time.Now,
		books:    make(map[int64]domain.Book),
		isbn:     make(map[string]int64),
		clients:  make(map[int64]domain.Client),
		emails:   make(map[string]int64),
		sales:    make(map[int64]domain.Sale),
		invoices: make(map[string]int64),
		idemKeys: make(map[string]int64),
	}
}

// SetClock overrides the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNextCommit makes the next Commit fail with err after afterLines stock
// decrements have been applied, exercising the rollback path.
func (s *Store) FailNextCommit(afterLines int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = afterLines
	s.failErr = err
}

func (s *Store) Books() bookrepo.Repository          { return bookView{s} }
func (s *Store) Clients() clientrepo.Repository      { return clientView{s} }
func (s *Store) Sales() salerepo.Repository          { return saleView{s} }
func (s *Store) Inventory() inventoryrepo.Repository { return inventoryView{s} }
func (s *Store) Outbox() outbox.Store                { return outboxView{s} }

// SeedBook upserts b and brings its stock to b.Stock through a restock
// movement, so the ledger stays consistent with the counter.
func (s *Store) SeedBook(b domain.Book) domain.Book {
	want := b.Stock
	saved, _ := s.Books().Upsert(context.Background(), b)
	if delta := want - saved.Stock; delta > 0 {
		_, _ = s.Inventory().Restock(context.Background(), inventoryrepo.RestockInput{BookID: saved.ID, Quantity: delta, Note: "seed"})
	}
	got, _ := s.Books().GetByID(context.Background(), saved.ID)
	return *got
}

// SeedClient upserts c.
func (s *Store) SeedClient(c domain.Client) domain.Client {
	saved, _ := s.Clients().Upsert(context.Background(), c)
	return *saved
}

// Events returns a copy of every outbox record.
func (s *Store) Events() []outbox.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Record(nil), s.events...)
}

// appendMovement must be called with s.mu held.
func (s *Store) appendMovement(m domain.StockMovement) {
	s.nextMovement++
	m.ID = s.nextMovement
	m.CreatedAt = s.now()
	s.movements = append(s.movements, m)
}

// appendEvent must be called with s.mu held.
func (s *Store) appendEvent(topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.nextEvent++
	s.events = append(s.events, outbox.Record{
		ID:        s.nextEvent,
		EventID:   uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Payload:   data,
		CreatedAt: s.now(),
	})
	return nil
}

type bookView struct{ s *Store }

func (v bookView) GetByID(_ context.Context, id int64) (*domain.Book, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "book", ID: id}
	}
	return &b, nil
}

func (v bookView) GetByISBN(_ context.Context, isbn string) (*domain.Book, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.isbn[isbn]
	if !ok {
		return nil, domain.ErrNotFound
	}
	b := v.s.books[id]
	return &b, nil
}

func (v bookView) List(_ context.Context, f bookrepo.ListFilter) ([]domain.Book, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []domain.Book
	for _, b := range v.s.books {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.LowStock && b.Stock > b.MinStock {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Title+" "+b.Author+" "+b.ISBN), q) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v bookView) Upsert(_ context.Context, b domain.Book) (*domain.Book, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if b.Status == "" {
		b.Status = domain.BookActive
	}
	now := v.s.now()
	if id, ok := v.s.isbn[b.ISBN]; ok {
		cur := v.s.books[id]
		cur.Title, cur.Author, cur.Price, cur.MinStock, cur.Status = b.Title, b.Author, b.Price, b.MinStock, b.Status
		cur.UpdatedAt = now
		v.s.books[id] = cur
		return &cur, nil
	}
	v.s.nextBook++
	b.ID = v.s.nextBook
	b.Stock = 0
	b.CreatedAt, b.UpdatedAt = now, now
	v.s.books[b.ID] = b
	v.s.isbn[b.ISBN] = b.ID
	return &b, nil
}

type clientView struct{ s *Store }

func (v clientView) GetByID(_ context.Context, id int64) (*domain.Client, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.clients[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "client", ID: id}
	}
	return &c, nil
}

func (v clientView) List(_ context.Context) ([]domain.Client, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]domain.Client, 0, len(v.s.clients))
	for _, c := range v.s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v clientView) Upsert(_ context.Context, c domain.Client) (*domain.Client, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if id, ok := v.s.emails[c.Email]; ok {
		cur := v.s.clients[id]
		cur.Name, cur.Phone = c.Name, c.Phone
		v.s.clients[id] = cur
		return &cur, nil
	}
	v.s.nextClient++
	c.ID = v.s.nextClient
	c.CreatedAt = v.s.now()
	v.s.clients[c.ID] = c
	v.s.emails[c.Email] = c.ID
	return &c, nil
}

type inventoryView struct{ s *Store }

func (v inventoryView) Movements(_ context.Context, bookID int64, limit int) ([]domain.StockMovement, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []domain.StockMovement
	for i := len(v.s.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if v.s.movements[i].BookID == bookID {
			out = append(out, v.s.movements[i])
		}
	}
	return out, nil
}

func (v inventoryView) Discrepancies(_ context.Context) ([]domain.Discrepancy, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	ledger := make(map[int64]int, len(v.s.books))
	for _, m := range v.s.movements {
		ledger[m.BookID] += m.Delta
	}
	var out []domain.Discrepancy
	for id, b := range v.s.books {
		if b.Stock != ledger[id] {
			out = append(out, domain.Discrepancy{BookID: id, Title: b.Title, Stock: b.Stock, LedgerStock: ledger[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (v inventoryView) Restock(_ context.Context, in inventoryrepo.RestockInput) (*domain.StockMovement, error) {
	if in.Quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be positive")
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.books[in.BookID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "book", ID: in.BookID}
	}
	b.Stock += in.Quantity
	b.UpdatedAt = v.s.now()
	v.s.books[b.ID] = b
	v.s.appendMovement(domain.StockMovement{BookID: b.ID, Delta: in.Quantity, Kind: domain.MovementRestock, StockAfter: b.Stock, Note: in.Note})
	m := v.s.movements[len(v.s.movements)-1]
	return &m, nil
}

type outboxView struct{ s *Store }

func (v outboxView) FetchPending(_ context.Context, limit int) ([]outbox.Record, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []outbox.Record
	for _, r := range v.s.events {
		if r.SentAt == nil && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v outboxView) MarkSent(_ context.Context, id int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for i := range v.s.events {
		if v.s.events[i].ID == id {
			now := v.s.now()
			v.s.events[i].SentAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}
