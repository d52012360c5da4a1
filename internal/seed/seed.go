package seed

import (
	"context"
	"fmt"

	"bookstore-pos/internal/domain"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"github.com/shopspring/decimal"
)

type BookWriter interface {
	Upsert(ctx context.Context, b domain.Book) (*domain.Book, error)
}

type ClientWriter interface {
	Upsert(ctx context.Context, c domain.Client) (*domain.Client, error)
}

type Restocker interface {
	Restock(ctx context.Context, in inventoryrepo.RestockInput) (*domain.StockMovement, error)
}

type bookSeed struct {
	ISBN     string
	Title    string
	Author   string
	Price    string
	Stock    int
	MinStock int
}

var books = []bookSeed{
	{ISBN: "978-979-3062-79-1", Title: "Laskar Pelangi", Author: "Andrea Hirata", Price: "25000", Stock: 7, MinStock: 2},
	{ISBN: "978-979-97312-3-4", Title: "Bumi Manusia", Author: "Pramoedya Ananta Toer", Price: "23000", Stock: 5, MinStock: 2},
	{ISBN: "978-602-424-275-0", Title: "Cantik Itu Luka", Author: "Eka Kurniawan", Price: "90000", Stock: 1, MinStock: 1},
	{ISBN: "978-602-03-1364-8", Title: "Pulang", Author: "Leila S. Chudori", Price: "85000", Stock: 12, MinStock: 3},
	{ISBN: "978-979-22-3792-6", Title: "Negeri 5 Menara", Author: "Ahmad Fuadi", Price: "69000.50", Stock: 20, MinStock: 5},
}

var clients = []domain.Client{
	{Name: "Walk-in Customer", Email: "walkin@bookstore.local"},
	{Name: "Budi Santoso", Email: "budi@example.com", Phone: "+62 812 0000 0001"},
	{Name: "Sari Wulandari", Email: "sari@example.com", Phone: "+62 812 0000 0002"},
}

// Apply inserts demo catalog and client data for manual testing. It is
// idempotent: books are topped up to their demo stock, never reduced.
func Apply(ctx context.Context, bw BookWriter, inv Restocker, cw ClientWriter) error {
	for _, c := range clients {
		if _, err := cw.Upsert(ctx, c); err != nil {
			return fmt.Errorf("upsert client %s: %w", c.Email, err)
		}
	}
	for _, b := range books {
		if err := upsertBook(ctx, bw, inv, b); err != nil {
			return fmt.Errorf("upsert book %s: %w", b.ISBN, err)
		}
	}
	return nil
}

func upsertBook(ctx context.Context, bw BookWriter, inv Restocker, b bookSeed) error {
	saved, err := bw.Upsert(ctx, domain.Book{
		ISBN:     b.ISBN,
		Title:    b.Title,
		Author:   b.Author,
		Price:    decimal.RequireFromString(b.Price),
		MinStock: b.MinStock,
		Status:   domain.BookActive,
	})
	if err != nil {
		return err
	}
	if missing := b.Stock - saved.Stock; missing > 0 {
		if _, err := inv.Restock(ctx, inventoryrepo.RestockInput{BookID: saved.ID, Quantity: missing, Note: "seed"}); err != nil {
			return err
		}
	}
	return nil
}
