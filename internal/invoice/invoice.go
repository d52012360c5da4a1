// Package invoice allocates human-readable sale invoice numbers of the form
// <prefix><YYYYMMDD><4-digit daily sequence>.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxSequence is the largest daily suffix that still fits four digits.
const MaxSequence = 9999

// ErrSequenceExhausted is returned once a day has used every suffix.
var ErrSequenceExhausted = errors.New("invoice sequence exhausted for the day")

// Sequencer hands out strictly increasing sequence numbers per calendar day.
// Numbers may be skipped but never repeated.
type Sequencer interface {
	Next(ctx context.Context, day time.Time) (int, error)
}

type Generator struct {
	prefix string
	seq    Sequencer
	loc    *time.Location
	now    func() time.Time
}

// NewGenerator builds a Generator. Days roll over at midnight in loc.
func NewGenerator(prefix string, seq Sequencer, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.Local
	}
	return &Generator{prefix: prefix, seq: seq, loc: loc, now: time.Now}
}

// WithClock overrides the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	clone := *g
	clone.now = now
	return &clone
}

// Next allocates the next invoice number for today.
func (g *Generator) Next(ctx context.Context) (string, error) {
	day := Day(g.now(), g.loc)
	n, err := g.seq.Next(ctx, day)
	if err != nil {
		return "", fmt.Errorf("next invoice sequence: %w", err)
	}
	if n > MaxSequence {
		return "", ErrSequenceExhausted
	}
	return Format(g.prefix, day, n), nil
}

// Day truncates t to its calendar date in loc, expressed as midnight UTC so it
// maps cleanly onto a DATE column.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Format(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", prefix, day.Format("20060102"), seq)
}
