// Package clientdir resolves client references against a remote client
// directory service over HTTP.
package clientdir

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bookstore-pos/internal/domain"
	"go.uber.org/zap"
	"resty.dev/v3"
)

type HTTPDirectory struct {
	client *resty.Client
	logger *zap.Logger
}

// NewHTTP talks to a directory exposing GET /clients/{id}.
func NewHTTP(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPDirectory{client: c, logger: logger}
}

func (d *HTTPDirectory) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	var out domain.Client
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&out).
		Get("/clients/{id}")
	if err != nil {
		d.logger.Error("client directory: request failed", zap.Int64("client_id", id), zap.Error(err))
		return nil, fmt.Errorf("client directory request: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, &domain.NotFoundError{Entity: "client", ID: id}
	case !resp.IsSuccess():
		d.logger.Error("client directory: unexpected status", zap.Int64("client_id", id), zap.Int("status", resp.StatusCode()))
		return nil, fmt.Errorf("client directory returned unexpected status: %d", resp.StatusCode())
	}
	if out.ID == 0 {
		out.ID = id
	}
	return &out, nil
}

func (d *HTTPDirectory) Close() error {
	return d.client.Close()
}
