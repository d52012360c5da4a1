package invoice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerator_FormatsDailySequence(t *testing.T) {
	gen := NewGenerator("INV-", NewMemory(), time.UTC).
		WithClock(fixedClock(time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)))

	first, err := gen.Next(context.Background())
	require.NoError(t, err)
	second, err := gen.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "INV-202403090001", first)
	assert.Equal(t, "INV-202403090002", second)
}

func TestGenerator_RestartsEachDay(t *testing.T) {
	seq := NewMemory()
	day1 := NewGenerator("INV-", seq, time.UTC).WithClock(fixedClock(time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)))
	day2 := day1.WithClock(fixedClock(time.Date(2024, 3, 10, 0, 1, 0, 0, time.UTC)))

	_, err := day1.Next(context.Background())
	require.NoError(t, err)
	got, err := day2.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "INV-202403100001", got)
}

func TestGenerator_UsesConfiguredTimezone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	gen := NewGenerator("INV-", NewMemory(), jakarta).
		WithClock(fixedClock(time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)))

	got, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INV-202403100001", got)
}

type stubSequencer struct {
	n   int
	err error
}

func (s stubSequencer) Next(context.Context, time.Time) (int, error) { return s.n, s.err }

func TestGenerator_Errors(t *testing.T) {
	_, err := NewGenerator("INV-", stubSequencer{n: MaxSequence + 1}, time.UTC).Next(context.Background())
	assert.ErrorIs(t, err, ErrSequenceExhausted)

	boom := errors.New("db down")
	_, err = NewGenerator("INV-", stubSequencer{err: boom}, time.UTC).Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestMemorySequencer_ConcurrentCallsNeverRepeat(t *testing.T) {
	gen := NewGenerator("INV-", NewMemory(), time.UTC).
		WithClock(fixedClock(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)))
	const n = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := gen.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
