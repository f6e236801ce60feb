package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftsight/riftsight/internal/observe"
)

// Sink is a named [Publisher] inside a [Fanout].
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout delivers every payload to all sinks concurrently, each under its own
// timeout, so one publish takes at most about one timeout however many sinks
// stall. A failing sink does not stop the others.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	metrics *observe.Metrics
}

var _ Publisher = (*Fanout)(nil)

// FanoutOption configures a [Fanout].
type FanoutOption func(*Fanout)

// WithTimeout sets the per-sink delivery timeout. Default: [DefaultTimeout].
func WithTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMetrics records deliveries on m.
func WithMetrics(m *observe.Metrics) FanoutOption {
	return func(f *Fanout) { f.metrics = m }
}

// NewFanout returns a Fanout over sinks. Sinks with a nil Publisher are
// skipped.
func NewFanout(sinks []Sink, opts ...FanoutOption) *Fanout {
	f := &Fanout{timeout: DefaultTimeout}
	for _, s := range sinks {
		if s.Publisher != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Publish implements [Publisher]. Failures are logged and also returned
// joined, for callers that want them; the capture loop ignores them.
func (f *Fanout) Publish(ctx context.Context, p Payload) error {
	// Indexed by sink so the joined error keeps sink order.
	errs := make([]error, len(f.sinks))
	var g errgroup.Group
	for i, s := range f.sinks {
		g.Go(func() error {
			errs[i] = f.deliver(ctx, s, p)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, s Sink, p Payload) error {
	sctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	err := s.Publisher.Publish(sctx, p)
	if f.metrics != nil {
		f.metrics.RecordPublish(ctx, s.Name, p.Action(), err)
	}
	if err != nil {
		observe.Logger(ctx).Debug("publish failed", "sink", s.Name, "action", p.Action(), "err", err)
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	slog.Debug("published", "sink", s.Name, "action", p.Action(), "id", p.ID, "items", len(p.Items))
	return nil
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }
