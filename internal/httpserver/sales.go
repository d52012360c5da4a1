package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookstore-pos/internal/domain"
	salesvc "bookstore-pos/internal/service/sale"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type submitSaleRequest struct {
	ClientID      int64               `json:"client_id"`
	Items         []salesvc.ItemInput `json:"items"`
	Discount      decimal.Decimal     `json:"discount"`
	PaymentMethod string              `json:"payment_method"`
	Notes         string              `json:"notes"`
}

type saleResponse struct {
	Success bool `json:"success"`
	*salesvc.Receipt
}

type voidSaleRequest struct {
	Reason string `json:"reason"`
}

type listSalesResponse struct {
	Sales   []domain.Sale      `json:"sales"`
	Summary domain.SaleSummary `json:"summary"`
}

func (h *handlers) submitSale(c *gin.Context) {
	var req submitSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt, err := h.deps.SaleSvc.Submit(c.Request.Context(), salesvc.SubmitInput{
		ClientID:       req.ClientID,
		CashierID:      cashierFrom(c),
		Items:          req.Items,
		Discount:       req.Discount,
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, saleResponse{Success: true, Receipt: receipt})
}

func (h *handlers) voidSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req voidSaleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	sale, err := h.deps.SaleSvc.Void(c.Request.Context(), salesvc.VoidInput{SaleID: id, CashierID: cashierFrom(c), Reason: req.Reason})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sale_id": sale.ID, "invoice_number": sale.InvoiceNumber, "status": sale.Status})
}

func (h *handlers) getSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.deps.SaleSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *handlers) listSales(c *gin.Context) {
	f := domain.SaleFilter{Status: domain.SaleStatus(c.Query("status"))}
	var err error
	if f.ClientID, err = queryInt64(c, "client_id"); err != nil {
		fail(c, http.StatusBadRequest, "client_id: must be an integer")
		return
	}
	if f.From, err = queryTime(c, "from"); err != nil {
		fail(c, http.StatusBadRequest, "from: must be RFC 3339 or YYYY-MM-DD")
		return
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		fail(c, http.StatusBadRequest, "to: must be RFC 3339 or YYYY-MM-DD")
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		fail(c, http.StatusBadRequest, "limit: must be an integer")
		return
	}
	f.Limit = int(limit)

	sales, summary, err := h.deps.SaleSvc.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	c.JSON(http.StatusOK, listSalesResponse{Sales: sales, Summary: summary})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "id: must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// queryTime accepts a full timestamp or a calendar date.
func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
