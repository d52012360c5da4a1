package httpserver

import (
	"net/http"

	cartsvc "bookstore-pos/internal/service/cart"
	"github.com/gin-gonic/gin"
)

// applyCart evaluates cart commands statelessly; the caller sends its cart
// and receives the updated cart with totals.
func (h *handlers) applyCart(c *gin.Context) {
	var req cartsvc.ApplyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	res, err := h.deps.CartSvc.Apply(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
