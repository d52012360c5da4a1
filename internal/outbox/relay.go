package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers one event payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay polls the outbox and forwards pending events in id order. Delivery is
// at-least-once: an event is marked sent only after Publish succeeds.
type Relay struct {
	store    Store
	pub      Publisher
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

func NewRelay(store Store, pub Publisher, logger *zap.Logger, interval time.Duration, batch int) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{store: store, pub: pub, logger: logger, interval: interval, batch: batch}
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("outbox flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush forwards one batch and reports how many events were delivered. It
// stops at the first publish failure so ordering per key is preserved.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range records {
		if err := r.pub.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			return sent, err
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
		r.logger.Debug("outbox event published",
			zap.String("event_id", rec.EventID),
			zap.String("topic", rec.Topic),
			zap.String("key", rec.Key))
	}
	return sent, nil
}
