package httpserver

import (
	"errors"
	"net/http"

	"bookstore-pos/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const genericFailure = "internal error"

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// writeError maps a typed error onto a status code. Infrastructure causes are
// logged and never echoed to the caller.
func (h *handlers) writeError(c *gin.Context, err error) {
	var (
		vErr     *domain.ValidationError
		stockErr *domain.InsufficientStockError
		pErr     *domain.PersistenceError
	)
	switch {
	case errors.As(err, &vErr):
		fail(c, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		fail(c, http.StatusConflict, stockErr.Error())
	case errors.Is(err, domain.ErrAlreadyVoided),
		errors.Is(err, domain.ErrVoidWindowElapsed),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrAlreadyExists):
		fail(c, http.StatusConflict, err.Error())
	case errors.As(err, &pErr):
		h.logger.Error("request failed", zap.String("request_id", c.GetString(headerRequestID)), zap.String("detail", pErr.Detail()))
		fail(c, http.StatusInternalServerError, pErr.Error())
	default:
		h.logger.Error("request failed", zap.String("request_id", c.GetString(headerRequestID)), zap.Error(err))
		fail(c, http.StatusInternalServerError, genericFailure)
	}
}

// writeSubmitError applies the sale submission contract: a rejected
// reference or a stock shortage is a server-side failure carrying a
// specific message.
func (h *handlers) writeSubmitError(c *gin.Context, err error) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		fail(c, http.StatusInternalServerError, stockErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusInternalServerError, err.Error())
	default:
		h.writeError(c, err)
	}
}
