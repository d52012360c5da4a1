package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookstore"

// Metrics groups the sale engine and HTTP collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SalesCommitted prometheus.Counter
	SalesFailed    *prometheus.CounterVec
	SalesVoided    prometheus.Counter
	InvoiceRetries prometheus.Counter
	CommitLatency  prometheus.Histogram

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SalesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "committed_total",
			Help:      "Sales committed successfully.",
		}),
		SalesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "failed_total",
			Help:      "Sale submissions rejected or rolled back, by reason.",
		}, []string{"reason"}),
		SalesVoided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "voided_total",
			Help:      "Sales voided.",
		}),
		InvoiceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "invoice_retries_total",
			Help:      "Commits retried after an invoice number conflict.",
		}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "commit_duration_ms",
			Help:      "Sale submission latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(m.SalesCommitted, m.SalesFailed, m.SalesVoided, m.InvoiceRetries, m.CommitLatency, m.Requests, m.LatencyMS)
	return m
}

func (m *Metrics) SaleCommitted(d time.Duration) {
	if m == nil {
		return
	}
	m.SalesCommitted.Inc()
	m.CommitLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SaleFailed(reason string) {
	if m == nil {
		return
	}
	m.SalesFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) SaleVoided() {
	if m == nil {
		return
	}
	m.SalesVoided.Inc()
}

func (m *Metrics) InvoiceRetry() {
	if m == nil {
		return
	}
	m.InvoiceRetries.Inc()
}

func (m *Metrics) ObserveRequest(handler string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(d.Milliseconds()))
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
