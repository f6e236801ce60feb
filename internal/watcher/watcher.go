// Package watcher runs the capture loop: screen → change gate → recognition
// → canonicalisation → stability debounce → publication.
//
// Cycles run strictly one after another on a single goroutine. The loop only
// runs while its [Activity] reports true (the lifecycle monitor says a game
// is in progress), and it restarts from scratch whenever the shared store's
// generation moves, so results never leak from one match into the next.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/internal/changegate"
	"github.com/riftsight/riftsight/internal/debounce"
	"github.com/riftsight/riftsight/internal/observe"
	"github.com/riftsight/riftsight/internal/publish"
	"github.com/riftsight/riftsight/internal/state"
	"github.com/riftsight/riftsight/pkg/capture"
	"github.com/riftsight/riftsight/pkg/recognition"
)

// Defaults used by [New].
const (
	DefaultInterval = 200 * time.Millisecond
	DefaultHold     = 2 * time.Second
	DefaultBackoff  = time.Second
	defaultLogEvery = 10
)

// ErrNoLayout is returned by [Watcher.Step] when no region layout matches
// the captured frame's width.
var ErrNoLayout = errors.New("watcher: no region layout for frame width")

// Activity reports whether capture should run. *lifecycle.Monitor
// implements it.
type Activity interface {
	Active() bool
}

// Enricher decorates a candidate set with data for the local player's
// champion right before publication. *canon.KnowledgeBase implements it.
type Enricher interface {
	Enrich(set canon.CandidateSet, champion string) canon.CandidateSet
}

type alwaysActive struct{}

func (alwaysActive) Active() bool { return true }

// Option configures a [Watcher].
type Option func(*Watcher)

// WithActivity gates the loop on a.
func WithActivity(a Activity) Option {
	return func(w *Watcher) { w.activity = a }
}

// WithEnricher decorates every published set with e, keyed by the store's
// identity.
func WithEnricher(e Enricher) Option {
	return func(w *Watcher) { w.enricher = e }
}

// WithInterval sets the pause between cycles. Default: 200ms.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithHold sets how long the loop idles after a publication unless the
// regions change. Zero disables the hold. Default: 2s.
func WithHold(d time.Duration) Option {
	return func(w *Watcher) { w.hold = max(d, 0) }
}

// WithBackoff sets the pause after a failed cycle. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// WithLayouts replaces the region layouts. Default: [capture.DefaultLayouts].
func WithLayouts(ls capture.Layouts) Option {
	return func(w *Watcher) {
		if len(ls) > 0 {
			w.layouts = ls
		}
	}
}

// WithGate replaces the change gate.
func WithGate(g *changegate.Gate) Option {
	return func(w *Watcher) { w.gate = g }
}

// WithDebouncer replaces the stability debouncer.
func WithDebouncer(d *debounce.Debouncer) Option {
	return func(w *Watcher) { w.debouncer = d }
}

// WithMetrics records capture, canonicalisation and loop errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithLogEvery logs only every nth cycle failure. Default: 10.
func WithLogEvery(n int) Option {
	return func(w *Watcher) { w.errLog = observe.NewThrottle(n) }
}

// Watcher is the capture loop. It is driven by one goroutine; only Run and
// Step may be called, and not concurrently.
type Watcher struct {
	capturer  capture.Capturer
	extractor recognition.Extractor
	canon     *canon.Canonicalizer
	store     *state.Store
	pub       publish.Publisher

	activity  Activity
	enricher  Enricher
	gate      *changegate.Gate
	debouncer *debounce.Debouncer
	layouts   capture.Layouts
	interval  time.Duration
	hold      time.Duration
	backoff   time.Duration
	metrics   *observe.Metrics
	errLog    *observe.Throttle
	now       func() time.Time

	// Per-run state, touched only by the loop goroutine.
	prev       image.Image
	regions    []image.Rectangle
	cached     canon.CandidateSet
	generation uint64
}

// New returns a Watcher. pub receives every publication and clear; it is
// expected to include a [publish.StoreSink] for store.
func New(
	c capture.Capturer,
	x recognition.Extractor,
	cz *canon.Canonicalizer,
	store *state.Store,
	pub publish.Publisher,
	opts ...Option,
) *Watcher {
	w := &Watcher{
		capturer:  c,
		extractor: x,
		canon:     cz,
		store:     store,
		pub:       pub,
		activity:  alwaysActive{},
		gate:      changegate.New(),
		debouncer: debounce.New(),
		layouts:   capture.DefaultLayouts(),
		interval:  DefaultInterval,
		hold:      DefaultHold,
		backoff:   DefaultBackoff,
		errLog:    observe.NewThrottle(defaultLogEvery),
		now:       time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	w.generation = store.Generation()
	return w
}

// Run executes cycles until ctx is cancelled. Failed cycles are counted,
// logged at a reduced rate and followed by the backoff; they never stop the
// loop.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("capture loop started", "interval", w.interval, "hold", w.hold)
	defer slog.Info("capture loop stopped")

	for ctx.Err() == nil {
		wait := w.interval
		d, err := w.Step(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			w.fail(ctx, err)
			wait = w.backoff
		case d.Action == debounce.ActionPublish && w.hold > 0:
			w.holdAfterPublish(ctx)
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
	return nil
}

// Step runs one capture cycle and returns the debouncer's decision.
func (w *Watcher) Step(ctx context.Context) (debounce.Decision, error) {
	if !w.activity.Active() {
		return w.deactivate(ctx), nil
	}

	if gen := w.store.Generation(); gen != w.generation {
		slog.Debug("capture loop: shared state reset observed", "generation", gen)
		w.generation = gen
		w.forget()
	}

	frame, err := w.capturer.Capture(ctx)
	if err != nil {
		return debounce.Decision{}, fmt.Errorf("watcher: capture: %w", err)
	}
	if recognition.Empty(frame.Image) {
		return debounce.Decision{}, fmt.Errorf("watcher: capture: empty frame")
	}
	if w.metrics != nil {
		w.metrics.FramesCaptured.Add(ctx, 1)
	}

	width := frame.Image.Bounds().Dx()
	regions := w.layouts.ForWidth(width)
	if len(regions) == 0 {
		return debounce.Decision{}, fmt.Errorf("%w: %d", ErrNoLayout, width)
	}

	set := w.cached
	if w.gate.HasChanged(w.prev, frame.Image, regions...) {
		set = w.recognize(ctx, frame, regions)
		w.cached = set
	} else if w.metrics != nil {
		w.metrics.GateSkips.Add(ctx, 1)
	}
	w.prev = frame.Image
	w.regions = regions

	d := w.debouncer.Observe(set, w.now())
	w.emit(ctx, d)
	return d, nil
}

func (w *Watcher) recognize(ctx context.Context, frame capture.Frame, regions []image.Rectangle) canon.CandidateSet {
	ctx, span := observe.StartSpan(ctx, "watcher.recognize")
	defer span.End()

	samples := capture.Crop(frame, regions)
	raw := make([]canon.RawReading, 0, len(samples))
	for _, s := range samples {
		text := w.extractor.Extract(ctx, s.Image)
		if text == "" {
			continue
		}
		raw = append(raw, canon.RawReading{RegionID: s.ID, Text: text})
	}

	set := w.canon.ResolveCandidateSet(raw, len(regions))
	span.SetAttributes(
		attribute.Int("readings", len(raw)),
		attribute.Bool("accepted", !set.Empty()),
	)
	if w.metrics != nil {
		for _, r := range set {
			w.metrics.RecordReading(ctx, r.Resolved())
		}
		w.metrics.RecordCandidateSet(ctx, !set.Empty())
	}
	return set
}

func (w *Watcher) emit(ctx context.Context, d debounce.Decision) {
	identity := w.store.Identity()
	ctx = observe.WithMatch(ctx, identity)
	var p publish.Payload
	switch d.Action {
	case debounce.ActionPublish:
		set := d.Set
		if w.enricher != nil {
			set = w.enricher.Enrich(set, identity)
		}
		p = publish.NewPayload(set, identity)
		observe.Logger(ctx).Info("capture loop: publishing", "names", d.Set.Names())
	case debounce.ActionClear:
		p = publish.Inactive(identity)
		observe.Logger(ctx).Info("capture loop: clearing")
	default:
		return
	}
	// Delivery failures are logged by the publisher.
	_ = w.pub.Publish(ctx, p)
}

// deactivate clears a published result once when the loop is gated off and
// drops all per-match state.
func (w *Watcher) deactivate(ctx context.Context) debounce.Decision {
	var d debounce.Decision
	if w.debouncer.State() == debounce.StatePublished {
		d = debounce.Decision{Action: debounce.ActionClear}
		w.emit(ctx, d)
	}
	w.forget()
	return d
}

func (w *Watcher) forget() {
	w.debouncer.Reset()
	w.prev = nil
	w.cached = nil
}

func (w *Watcher) fail(ctx context.Context, err error) {
	if w.metrics != nil {
		w.metrics.RecordLoopError(ctx, "capture")
	}
	w.errLog.Warn(ctx, "capture loop: cycle failed", "err", err, "backoff", w.backoff)
}

// holdAfterPublish idles for the hold period in interval steps, returning
// early when the monitored regions change (a reroll) or capture is gated
// off. It reports whether it woke early.
func (w *Watcher) holdAfterPublish(ctx context.Context) bool {
	deadline := w.now().Add(w.hold)
	for w.now().Before(deadline) {
		if !sleep(ctx, w.interval) {
			return false
		}
		if !w.activity.Active() || w.store.Generation() != w.generation {
			return true
		}
		frame, err := w.capturer.Capture(ctx)
		if err != nil || recognition.Empty(frame.Image) {
			continue
		}
		if w.gate.HasChanged(w.prev, frame.Image, w.regions...) {
			slog.Debug("capture loop: regions changed during hold")
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
