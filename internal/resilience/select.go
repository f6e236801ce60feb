package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoneAvailable is returned by [Select] when no candidate passes its probe.
var ErrNoneAvailable = errors.New("resilience: no candidate available")

// defaultProbeTimeout bounds each candidate's probe when the caller's context
// has no earlier deadline.
const defaultProbeTimeout = 5 * time.Second

// Candidate is one backend offered to [Select].
type Candidate[T any] struct {
	Name  string
	Value T

	// Probe reports whether the backend is usable. A nil Probe always
	// succeeds.
	Probe func(ctx context.Context) error
}

// Select returns the first candidate, in order, whose probe succeeds. It is
// meant for one-shot startup selection: the chosen backend stays fixed for
// the lifetime of the process. When every probe fails the returned error
// wraps [ErrNoneAvailable] and every probe error.
func Select[T any](ctx context.Context, candidates ...Candidate[T]) (Candidate[T], error) {
	var errs []error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Candidate[T]{}, err
		}
		if c.Probe == nil {
			return c, nil
		}
		pctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		err := c.Probe(pctx)
		cancel()
		if err == nil {
			slog.Info("backend selected", "name", c.Name)
			return c, nil
		}
		slog.Warn("backend unavailable, trying next", "name", c.Name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
	}
	return Candidate[T]{}, fmt.Errorf("%w: %w", ErrNoneAvailable, errors.Join(errs...))
}
