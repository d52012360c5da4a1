package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bookstore-pos/internal/domain"
	bookrepo "bookstore-pos/internal/repository/book"
	inventoryrepo "bookstore-pos/internal/repository/inventory"
	"github.com/gin-gonic/gin"
)

type restockRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}

func (h *handlers) listBooks(c *gin.Context) {
	lowStock, _ := strconv.ParseBool(c.Query("low_stock"))
	books, err := h.deps.CatalogSvc.List(c.Request.Context(), bookrepo.ListFilter{
		Status:   domain.BookStatus(strings.ToLower(c.Query("status"))),
		LowStock: lowStock,
		Query:    c.Query("q"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if books == nil {
		books = []domain.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *handlers) getBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	book, err := h.deps.CatalogSvc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *handlers) bookMovements(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		fail(c, http.StatusBadRequest, "limit: must be an integer")
		return
	}
	moves, err := h.deps.CatalogSvc.Movements(c.Request.Context(), id, int(limit))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if moves == nil {
		moves = []domain.StockMovement{}
	}
	c.JSON(http.StatusOK, gin.H{"movements": moves})
}

func (h *handlers) restockBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	m, err := h.deps.CatalogSvc.Restock(c.Request.Context(), inventoryrepo.RestockInput{
		BookID:   id,
		Quantity: req.Quantity,
		Note:     req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) discrepancies(c *gin.Context) {
	out, err := h.deps.CatalogSvc.Discrepancies(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if out == nil {
		out = []domain.Discrepancy{}
	}
	c.JSON(http.StatusOK, gin.H{"discrepancies": out})
}

// bindError keeps typed validation failures raised while decoding and
// reports anything else as a malformed body.
func bindError(err error) error {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	return domain.Invalid("", "invalid request body")
}
