package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bookstore-pos/internal/config"
	"bookstore-pos/internal/db"
	"bookstore-pos/internal/importer"
	"bookstore-pos/internal/logging"
	bookrepo "bookstore-pos/internal/repository/book"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"go.uber.org/zap"
)

func main() {
	var (
		filePath string
		note     string
	)
	flag.StringVar(&filePath, "file", "", "Path to books CSV (isbn,title,author,price,quantity,min_stock,status)")
	flag.StringVar(&note, "note", "", "Note recorded on each restock movement (default: the file name)")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if note == "" {
		note = "import " + filePath
	}

	cfg := config.FromEnv()
	logger, err := logging.New("bookstore-importer", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal("open file", zap.String("file", filePath), zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, bookrepo.NewPostgres(pool, logger), inventoryrepo.NewPostgres(pool, logger), note)

	start := time.Now()
	res, err := imp.Run(ctx)
	if err != nil {
		logger.Fatal("import failed", zap.Int("imported", res.Books), zap.Error(err))
	}

	fmt.Printf("Imported %d books (%d units) in %s\n", res.Books, res.Units, time.Since(start).Truncate(time.Millisecond))
}
