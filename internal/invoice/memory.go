package invoice

import (
	"context"
	"sync"
	"time"
)

// MemorySequencer keeps per-day counters in process memory.
type MemorySequencer struct {
	mu   sync.Mutex
	last map[string]int
}

func NewMemory() *MemorySequencer {
	return &MemorySequencer{last: make(map[string]int)}
}

func (s *MemorySequencer) Next(_ context.Context, day time.Time) (int, error) {
	key := day.Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key]++
	return s.last[key], nil
}
