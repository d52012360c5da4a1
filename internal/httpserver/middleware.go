package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookstore-pos/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerCashierID      = "X-Cashier-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerRequestID      = "X-Request-ID"
)

type ctxKey string

const cashierCtxKey ctxKey = "cashier"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(headerRequestID)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func observe(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, c.Writer.Status(), time.Since(start))
	}
}

// cashierMiddleware requires the acting user id supplied by the upstream
// session layer and stores it on the request context.
func cashierMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerCashierID))
		if raw == "" {
			fail(c, http.StatusUnauthorized, "cashier identity required")
			c.Abort()
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fail(c, http.StatusUnauthorized, "invalid cashier identity")
			c.Abort()
			return
		}
		ctx := context.WithValue(c.Request.Context(), cashierCtxKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func cashierFrom(c *gin.Context) int64 {
	id, _ := c.Request.Context().Value(cashierCtxKey).(int64)
	return id
}
