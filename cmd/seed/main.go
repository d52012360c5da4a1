package main

import (
	"context"

	"bookstore-pos/internal/config"
	"bookstore-pos/internal/db"
	"bookstore-pos/internal/logging"
	bookrepo "bookstore-pos/internal/repository/book"
	clientrepo "bookstore-pos/internal/repository/client"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"bookstore-pos/internal/seed"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New("bookstore-seed", cfg.LogLevel)
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

	err = seed.Apply(ctx,
		bookrepo.NewPostgres(pool, logger),
		inventoryrepo.NewPostgres(pool, logger),
		clientrepo.NewPostgres(pool, logger))
	if err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}

	logger.Info("seed applied")
}
