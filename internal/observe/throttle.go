package observe

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Throttle lets every Nth occurrence of a repeated event through. Worker
// loops use it so a persistent failure logs once per N cycles instead of on
// every cycle.
type Throttle struct {
	every uint64
	n     atomic.Uint64
}

// NewThrottle returns a Throttle that allows the first occurrence and then
// every nth one. n < 1 allows everything.
func NewThrottle(n int) *Throttle {
	return &Throttle{every: uint64(max(n, 1))}
}

// Allow counts one occurrence and reports whether it should be logged,
// together with the running total.
func (t *Throttle) Allow() (count uint64, ok bool) {
	c := t.n.Add(1)
	return c, (c-1)%t.every == 0
}

// Count returns the number of occurrences so far.
func (t *Throttle) Count() uint64 { return t.n.Load() }

// Reset zeroes the counter.
func (t *Throttle) Reset() { t.n.Store(0) }

// Warn logs msg at warn level through [Logger] when the throttle allows it.
// The running count is attached as "occurrences".
func (t *Throttle) Warn(ctx context.Context, msg string, args ...any) {
	count, ok := t.Allow()
	if !ok {
		return
	}
	Logger(ctx).Log(ctx, slog.LevelWarn, msg, append(args, "occurrences", count)...)
}
