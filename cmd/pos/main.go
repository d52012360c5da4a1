package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"bookstore-pos/internal/cart"
	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/posclient"
	"github.com/shopspring/decimal"
)

func main() {
	var (
		apiURL    string
		cashierID int64
		clientID  int64
		discount  string
		payment   string
		notes     string
		key       string
		voidID    int64
		reason    string
		timeout   time.Duration
	)
	flag.StringVar(&apiURL, "api", envOr("POS_API_URL", "http://localhost:8080"), "Bookstore API base URL")
	flag.Int64Var(&cashierID, "cashier", 0, "Acting cashier id")
	flag.Int64Var(&clientID, "client", 0, "Client id the sale is recorded for")
	flag.StringVar(&discount, "discount", "0", "Discount amount")
	flag.StringVar(&payment, "payment", string(domain.PaymentCash), "Payment method (cash, card, transfer, e-wallet)")
	flag.StringVar(&notes, "notes", "", "Free-form sale notes")
	flag.StringVar(&key, "idempotency-key", "", "Idempotency key (generated when empty)")
	flag.Int64Var(&voidID, "void", 0, "Void this sale id instead of selling")
	flag.StringVar(&reason, "reason", "", "Void reason")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s -cashier ID -client ID BOOK_ID[:QTY]...\n       %s -cashier ID -void SALE_ID [-reason TEXT]\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if cashierID <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := posclient.New(apiURL, cashierID, timeout)
	defer client.Close()
	ctx := context.Background()

	if voidID > 0 {
		if err := client.Void(ctx, voidID, reason); err != nil {
			exit(err)
		}
		fmt.Printf("Sale %d voided\n", voidID)
		return
	}

	picks := make([]posclient.Pick, 0, flag.NArg())
	for _, arg := range flag.Args() {
		p, err := posclient.ParsePick(arg)
		if err != nil {
			exit(err)
		}
		picks = append(picks, p)
	}
	disc, err := decimal.NewFromString(discount)
	if err != nil {
		exit(fmt.Errorf("invalid discount %q", discount))
	}

	c, err := client.BuildCart(ctx, picks)
	if err != nil {
		exit(err)
	}
	totals := c.Totals(disc)
	for _, l := range c.Lines() {
		fmt.Printf("  %-40s %3d x %12s = %12s\n", l.Title, l.Quantity, l.UnitPrice.StringFixed(2), l.Total().StringFixed(2))
	}
	fmt.Printf("  %-40s %31s\n", "Total", totals.Total.StringFixed(2))

	receipt, err := client.Submit(ctx, c, cart.Checkout{
		ClientID:      clientID,
		Discount:      disc,
		PaymentMethod: domain.PaymentMethod(payment),
		Notes:         notes,
	}, key)
	if err != nil {
		exit(err)
	}
	fmt.Printf("Sale %d recorded as %s, total %s\n", receipt.SaleID, receipt.InvoiceNumber, receipt.Total)
	for _, a := range receipt.LowStock {
		fmt.Printf("  low stock: %s (%d left, minimum %d)\n", a.Title, a.Stock, a.MinStock)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func exit(err error) {
	var apiErr *posclient.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "server rejected the request: %s\n", apiErr.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
