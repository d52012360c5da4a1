package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "STORAGE", "INVOICE_PREFIX", "VOID_WINDOW", "CORS_ALLOWED_ORIGINS", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "INV-", cfg.InvoicePrefix)
	assert.Zero(t, cfg.VoidWindow)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "Memory")
	t.Setenv("VOID_WINDOW", "24h")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("INVOICE_TIMEZONE", "UTC")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")

	cfg := FromEnv()

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 24*time.Hour, cfg.VoidWindow)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, time.UTC, cfg.InvoiceLocation)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
}
