package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"bookstore-pos/internal/clientdir"
	"bookstore-pos/internal/config"
	"bookstore-pos/internal/db"
	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/httpserver"
	"bookstore-pos/internal/invoice"
	"bookstore-pos/internal/kafka"
	"bookstore-pos/internal/logging"
	"bookstore-pos/internal/metrics"
	"bookstore-pos/internal/migrate"
	"bookstore-pos/internal/outbox"
	bookrepo "bookstore-pos/internal/repository/book"
	clientrepo "bookstore-pos/internal/repository/client"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"bookstore-pos/internal/repository/memory"
	salerepo "bookstore-pos/internal/repository/sale"
	"bookstore-pos/internal/seed"
	cartsvc "bookstore-pos/internal/service/cart"
	"bookstore-pos/internal/service/catalog"
	salesvc "bookstore-pos/internal/service/sale"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type storage struct {
	books     bookrepo.Repository
	clients   clientrepo.Repository
	inventory inventoryrepo.Repository
	sales     salerepo.Repository
	outbox    outbox.Store
	sequencer invoice.Sequencer
	pinger    httpserver.Pinger
	close     func()
}

type clientDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New("bookstore-api", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer store.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var clients clientDirectory = store.clients
	if cfg.ClientDirectoryURL != "" {
		remote := clientdir.NewHTTP(cfg.ClientDirectoryURL, cfg.ClientDirectoryTimeout, logger.Named("clientdir"))
		defer remote.Close()
		clients = remote
		logger.Info("using remote client directory", zap.String("url", cfg.ClientDirectoryURL))
	}

	invoices := invoice.NewGenerator(cfg.InvoicePrefix, store.sequencer, cfg.InvoiceLocation)
	saleService := salesvc.New(store.sales, clients, invoices, salesvc.Options{
		VoidWindow: cfg.VoidWindow,
		Logger:     logger.Named("sale"),
		Metrics:    m,
	})
	catalogService := catalog.New(store.books, store.inventory, logger.Named("catalog"))
	cartService := cartsvc.New(catalogService)

	srv, err := httpserver.New(cfg.HTTPAddr, logger.Named("http"), store.pinger, httpserver.Deps{
		SaleSvc:     saleService,
		CartSvc:     cartService,
		CatalogSvc:  catalogService,
		Clients:     clients,
		Metrics:     m,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	relayDone := startRelay(ctx, cfg, store.outbox, logger.Named("outbox"))

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
	<-relayDone
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		mem := memory.New()
		if err := seed.Apply(ctx, mem.Books(), mem.Inventory(), mem.Clients()); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory storage; data is lost on exit")
		return &storage{
			books:     mem.Books(),
			clients:   mem.Clients(),
			inventory: mem.Inventory(),
			sales:     mem.Sales(),
			outbox:    mem.Outbox(),
			sequencer: invoice.NewMemory(),
			close:     func() {},
		}, nil
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg.DBConnString, db.WithMaxConns(cfg.DBMaxConns))
		if err != nil {
			return nil, err
		}
		if err := migrate.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{
			books:     bookrepo.NewPostgres(pool, logger.Named("books")),
			clients:   clientrepo.NewPostgres(pool, logger.Named("clients")),
			inventory: inventoryrepo.NewPostgres(pool, logger.Named("inventory")),
			sales:     salerepo.NewPostgres(pool, logger.Named("sales")),
			outbox:    outbox.NewPostgres(pool),
			sequencer: invoice.NewPostgres(pool),
			pinger:    pool,
			close:     pool.Close,
		}, nil
	default:
		return nil, errors.New("unknown storage backend " + cfg.Storage)
	}
}

// startRelay forwards outbox events to Kafka until ctx is cancelled. Without
// brokers events stay in the outbox.
func startRelay(ctx context.Context, cfg config.Config, store outbox.Store, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	pub, err := kafka.NewClient(cfg.KafkaBrokers).NewPublisher()
	if err != nil {
		logger.Info("outbox relay disabled", zap.Error(err))
		close(done)
		return done
	}
	relay := outbox.NewRelay(store, pub, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go func() {
		defer close(done)
		defer pub.Close()
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", zap.Error(err))
		}
	}()
	return done
}
