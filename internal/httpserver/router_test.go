package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bookstore-pos/internal/domain"
	"bookstore-pos/internal/invoice"
	"bookstore-pos/internal/metrics"
	"bookstore-pos/internal/repository/memory"
	cartsvc "bookstore-pos/internal/service/cart"
	"bookstore-pos/internal/service/catalog"
	salesvc "bookstore-pos/internal/service/sale"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	client domain.Client
	x, y   domain.Book
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	store := memory.New()
	env := &testEnv{
		store:  store,
		client: store.SeedClient(domain.Client{Name: "Sari", Email: "sari@example.com"}),
		x:      store.SeedBook(domain.Book{ISBN: "978-01", Title: "Laskar Pelangi", Price: decimal.NewFromInt(25000), Stock: 7, MinStock: 2}),
		y:      store.SeedBook(domain.Book{ISBN: "978-02", Title: "Bumi Manusia", Price: decimal.NewFromInt(23000), Stock: 5, MinStock: 1}),
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	catalogSvc := catalog.New(store.Books(), store.Inventory(), logger)
	gen := invoice.NewGenerator("INV-", invoice.NewMemory(), time.UTC)
	router, err := buildRouter(logger, nil, Deps{
		SaleSvc:    salesvc.New(store.Sales(), store.Clients(), gen, salesvc.Options{Logger: logger, Metrics: m}),
		CartSvc:    cartsvc.New(catalogSvc),
		CatalogSvc: catalogSvc,
		Clients:    store.Clients(),
		Metrics:    m,
		Gatherer:   reg,
	})
	require.NoError(t, err)
	env.router = router
	return env
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) saleBody(items ...string) string {
	return `{"client_id":` + strconv.FormatInt(e.client.ID, 10) + `,"items":[` + strings.Join(items, ",") + `]}`
}

func item(b domain.Book, qty int) string {
	return `{"book_id":` + strconv.FormatInt(b.ID, 10) + `,"quantity":` + strconv.Itoa(qty) + `,"unit_price":"` + b.Price.String() + `"}`
}

var cashier = map[string]string{headerCashierID: "3"}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestBuildRouter_RequiresDeps(t *testing.T) {
	_, err := buildRouter(zaptest.NewLogger(t), nil, Deps{})
	assert.Error(t, err)
}

func TestSubmitSale_Created(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 2), item(env.y, 1)), cashier)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "73000", body["total"])
	assert.NotEmpty(t, body["invoice_number"])
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestSubmitSale_MissingCashier(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 1)), nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestSubmitSale_InsufficientStockIsServerError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 8)), cashier)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "insufficient stock")
	b, err := env.store.Books().GetByID(context.Background(), env.x.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, b.Stock)
}

func TestSubmitSale_UnknownClientIsServerError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales", `{"client_id":404,"items":[`+item(env.x, 1)+`]}`, cashier)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "client 404 not found")
}

func TestSubmitSale_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales", env.saleBody(), cashier)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/sales", `{"client_id":`, cashier)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitSale_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	headers := map[string]string{headerCashierID: "3", headerIdempotencyKey: "till-1-42"}
	body := env.saleBody(item(env.x, 1))

	first := env.do(http.MethodPost, "/api/v1/sales", body, headers)
	second := env.do(http.MethodPost, "/api/v1/sales", body, headers)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decode(t, first)["invoice_number"], decode(t, second)["invoice_number"])
}

func TestSubmitSale_IdempotencyKeyReusedByAnotherCashier(t *testing.T) {
	env := newTestEnv(t)
	body := env.saleBody(item(env.x, 1))

	first := env.do(http.MethodPost, "/api/v1/sales", body, map[string]string{headerCashierID: "3", headerIdempotencyKey: "till-1-43"})
	require.Equal(t, http.StatusCreated, first.Code)

	other := env.do(http.MethodPost, "/api/v1/sales", body, map[string]string{headerCashierID: "4", headerIdempotencyKey: "till-1-43"})
	assert.Equal(t, http.StatusConflict, other.Code)
	assert.Equal(t, false, decode(t, other)["success"])
}

func TestVoidSale_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	created := env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 2)), cashier)
	require.Equal(t, http.StatusCreated, created.Code)
	id := strconv.FormatFloat(decode(t, created)["sale_id"].(float64), 'f', 0, 64)

	rec := env.do(http.MethodPost, "/api/v1/sales/"+id+"/void", `{"reason":"wrong book"}`, cashier)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "voided", decode(t, rec)["status"])

	rec = env.do(http.MethodPost, "/api/v1/sales/"+id+"/void", "", cashier)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/sales/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wrong book", decode(t, rec)["void_reason"])

	rec = env.do(http.MethodGet, "/api/v1/books/"+strconv.FormatInt(env.x.ID, 10), "", nil)
	assert.Equal(t, float64(7), decode(t, rec)["stock"])
}

func TestVoidSale_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/sales/999/void", "", cashier)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/sales/abc/void", "", cashier)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSales_Summary(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 1)), cashier)
	env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.y, 1)), cashier)
	env.do(http.MethodPost, "/api/v1/sales/1/void", "", cashier)

	rec := env.do(http.MethodGet, "/api/v1/sales", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["count"])
	assert.Equal(t, float64(1), summary["voided"])
	assert.Equal(t, "23000", summary["active_total"])

	rec = env.do(http.MethodGet, "/api/v1/sales?status=pending", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/sales?from=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCart(t *testing.T) {
	env := newTestEnv(t)
	body := `{"actions":[{"action":"add_line","book_id":` + strconv.FormatInt(env.x.ID, 10) + `},{"action":"change_quantity","index":0,"delta":2}]}`

	rec := env.do(http.MethodPost, "/api/v1/carts/apply", body, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	totals := decode(t, rec)["totals"].(map[string]any)
	assert.Equal(t, float64(3), totals["items"])
	assert.Equal(t, "75000", totals["total"])
}

func TestApplyCart_StockExceeded(t *testing.T) {
	env := newTestEnv(t)
	body := `{"cart":{"lines":[{"book_id":` + strconv.FormatInt(env.y.ID, 10) + `,"title":"Bumi Manusia","quantity":5,"unit_price":"23000","stock_snapshot":5}]},"actions":[{"action":"change_quantity","index":0,"delta":1}]}`

	rec := env.do(http.MethodPost, "/api/v1/carts/apply", body, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBooks_Endpoints(t *testing.T) {
	env := newTestEnv(t)
	id := strconv.FormatInt(env.x.ID, 10)

	rec := env.do(http.MethodGet, "/api/v1/books/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/books/"+id+"/restock", `{"quantity":3,"note":"delivery"}`, cashier)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(10), decode(t, rec)["stock_after"])

	rec = env.do(http.MethodGet, "/api/v1/books/"+id+"/movements", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["movements"])

	rec = env.do(http.MethodGet, "/api/v1/inventory/discrepancies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["discrepancies"])

	rec = env.do(http.MethodGet, "/api/v1/books?q=bumi", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["books"], 1)
}

func TestGetClient(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/clients/"+strconv.FormatInt(env.client.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sari", decode(t, rec)["name"])

	rec = env.do(http.MethodGet, "/api/v1/clients/77", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "memory", decode(t, rec)["storage"])

	env.do(http.MethodPost, "/api/v1/sales", env.saleBody(item(env.x, 1)), cashier)
	rec = env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bookstore_sales_committed_total 1")
	assert.Contains(t, rec.Body.String(), `bookstore_http_requests_total{handler="/api/v1/sales",status="201"} 1`)
}
