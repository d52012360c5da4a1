package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bookstore-pos/internal/cart"
	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/metrics"
	bookrepo "bookstore-pos/internal/repository/book"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	cartsvc "bookstore-pos/internal/service/cart"
	salesvc "bookstore-pos/internal/service/sale"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type saleService interface {
	Submit(ctx context.Context, in salesvc.SubmitInput) (*salesvc.Receipt, error)
	Void(ctx context.Context, in salesvc.VoidInput) (*domain.Sale, error)
	Get(ctx context.Context, id int64) (*domain.Sale, error)
	List(ctx context.Context, f domain.SaleFilter) ([]domain.Sale, domain.SaleSummary, error)
}

type cartService interface {
	Apply(ctx context.Context, in cartsvc.ApplyInput) (*cartsvc.ApplyResult, error)
}

type catalogService interface {
	Get(ctx context.Context, id int64) (*domain.Book, error)
	List(ctx context.Context, f bookrepo.ListFilter) ([]domain.Book, error)
	Product(ctx context.Context, id int64) (cart.Product, error)
	Movements(ctx context.Context, bookID int64, limit int) ([]domain.StockMovement, error)
	Discrepancies(ctx context.Context) ([]domain.Discrepancy, error)
	Restock(ctx context.Context, in inventoryrepo.RestockInput) (*domain.StockMovement, error)
}

type clientDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
}

// Deps carries the services the router dispatches to.
type Deps struct {
	SaleSvc     saleService
	CartSvc     cartService
	CatalogSvc  catalogService
	Clients     clientDirectory
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if deps.SaleSvc == nil || deps.CartSvc == nil || deps.CatalogSvc == nil || deps.Clients == nil {
		return nil, errors.New("httpserver: sale, cart, catalog and client dependencies are required")
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestID(), requestLogger(logger), observe(deps.Metrics), gin.Recovery())
	router.Use(cors.New(corsConfig(deps.CORSOrigins)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	h := &handlers{deps: deps, logger: logger}
	api := router.Group("/api/v1")

	sales := api.Group("/sales")
	sales.GET("", h.listSales)
	sales.GET("/:id", h.getSale)
	sales.POST("", cashierMiddleware(), h.submitSale)
	sales.POST("/:id/void", cashierMiddleware(), h.voidSale)

	api.POST("/carts/apply", h.applyCart)

	api.GET("/books", h.listBooks)
	api.GET("/books/:id", h.getBook)
	api.GET("/books/:id/movements", h.bookMovements)
	api.POST("/books/:id/restock", cashierMiddleware(), h.restockBook)
	api.GET("/inventory/discrepancies", h.discrepancies)

	api.GET("/clients/:id", h.getClient)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", headerCashierID, headerIdempotencyKey, headerRequestID},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}
