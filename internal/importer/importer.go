package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bookstore-pos/internal/domain"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"github.com/shopspring/decimal"
)

type BookWriter interface {
	Upsert(ctx context.Context, b domain.Book) (*domain.Book, error)
}

type Restocker interface {
	Restock(ctx context.Context, in inventoryrepo.RestockInput) (*domain.StockMovement, error)
}

// CSVImporter reads a catalog delivery sheet, upserts each book and records
// the delivered quantity as a restock movement.
type CSVImporter struct {
	reader    *csv.Reader
	books     BookWriter
	inventory Restocker
	note      string
}

func NewCSVImporter(r io.Reader, books BookWriter, inventory Restocker, note string) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:    csvr,
		books:     books,
		inventory: inventory,
		note:      note,
	}
}

// Result counts what a run touched.
type Result struct {
	Books int
	Units int
}

type csvRow struct {
	line     int
	isbn     string
	title    string
	author   string
	price    decimal.Decimal
	quantity int
	minStock int
	status   domain.BookStatus
}

var requiredColumns = []string{"isbn", "title", "price"}

// Run imports every row. It stops at the first invalid row; rows before it
// stay imported.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result
	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return res, fmt.Errorf("missing required column %q", col)
		}
	}

	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", line, err)
		}
		row, err := parseRow(line, record, index)
		if err != nil {
			return res, err
		}
		if row == nil {
			continue
		}
		if err := i.save(ctx, row); err != nil {
			return res, err
		}
		res.Books++
		res.Units += row.quantity
	}
	return res, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	saved, err := i.books.Upsert(ctx, domain.Book{
		ISBN:     row.isbn,
		Title:    row.title,
		Author:   row.author,
		Price:    row.price,
		MinStock: row.minStock,
		Status:   row.status,
	})
	if err != nil {
		return fmt.Errorf("upsert book %q: %w", row.isbn, err)
	}
	if row.quantity == 0 {
		return nil
	}
	if _, err := i.inventory.Restock(ctx, inventoryrepo.RestockInput{BookID: saved.ID, Quantity: row.quantity, Note: i.note}); err != nil {
		return fmt.Errorf("restock book %q: %w", row.isbn, err)
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(line int, record []string, index map[string]int) (*csvRow, error) {
	isbn := pick(record, index, "isbn")
	if isbn == "" {
		return nil, nil
	}
	row := &csvRow{
		line:   line,
		isbn:   isbn,
		title:  pick(record, index, "title"),
		author: pick(record, index, "author"),
		status: domain.BookStatus(strings.ToLower(pick(record, index, "status"))),
	}
	if row.title == "" {
		return nil, fmt.Errorf("row %d: title is required", line)
	}
	price, err := decimal.NewFromString(pick(record, index, "price"))
	if err != nil || price.IsNegative() || !domain.WholeCents(price) {
		return nil, fmt.Errorf("row %d: invalid price %q", line, pick(record, index, "price"))
	}
	row.price = price
	if row.quantity, err = pickInt(record, index, "quantity"); err != nil || row.quantity < 0 {
		return nil, fmt.Errorf("row %d: invalid quantity %q", line, pick(record, index, "quantity"))
	}
	if row.minStock, err = pickInt(record, index, "min_stock"); err != nil || row.minStock < 0 {
		return nil, fmt.Errorf("row %d: invalid min_stock %q", line, pick(record, index, "min_stock"))
	}
	if row.status == "" {
		row.status = domain.BookActive
	}
	if !row.status.Valid() {
		return nil, fmt.Errorf("row %d: invalid status %q", line, row.status)
	}
	return row, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func pickInt(record []string, index map[string]int, key string) (int, error) {
	v := pick(record, index, key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
