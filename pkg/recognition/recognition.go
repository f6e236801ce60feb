// Package recognition turns a screen region into raw text.
//
// An [Engine] is a concrete OCR backend. The pipeline never talks to an
// Engine directly: it goes through an [Adapter], which implements
// [Extractor] and guarantees that extraction never fails loudly. Empty
// images, engine errors and even engine panics all collapse into "".
//
// One engine is chosen at startup with [Select] and kept for the lifetime of
// the process.
package recognition

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riftsight/riftsight/internal/observe"
	"github.com/riftsight/riftsight/internal/resilience"
)

// Engine is an OCR backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Probe reports whether the engine can serve requests right now.
	Probe(ctx context.Context) error

	// Recognize returns the text found in img. It may return noisy,
	// multi-line or empty text.
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Extractor is what the capture loop consumes: text in, never an error.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) string
}

const defaultLogEvery = 10

// Option configures an [Adapter].
type Option func(*Adapter)

// WithMetrics records engine latency and errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithLogEvery logs only every nth engine failure. Default: 10.
func WithLogEvery(n int) Option {
	return func(a *Adapter) { a.errLog = observe.NewThrottle(n) }
}

// Adapter wraps an [Engine] as an [Extractor].
type Adapter struct {
	engine  Engine
	metrics *observe.Metrics
	errLog  *observe.Throttle
}

var _ Extractor = (*Adapter)(nil)

// NewAdapter returns an Adapter around e.
func NewAdapter(e Engine, opts ...Option) *Adapter {
	a := &Adapter{engine: e, errLog: observe.NewThrottle(defaultLogEvery)}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine { return a.engine }

// Extract implements [Extractor].
func (a *Adapter) Extract(ctx context.Context, img image.Image) (text string) {
	if Empty(img) {
		return ""
	}

	ctx, span := observe.StartSpan(ctx, "recognition.extract")
	span.SetAttributes(attribute.String("engine", a.engine.Name()))
	defer span.End()

	start := time.Now()
	raw, err := a.recognize(ctx, img)
	if a.metrics != nil {
		a.metrics.RecordRecognition(ctx, a.engine.Name(), time.Since(start), err)
	}
	if err != nil {
		observe.Fail(span, err)
		if ctx.Err() == nil {
			a.errLog.Warn(ctx, "recognition: engine failed", "engine", a.engine.Name(), "err", err)
		}
		return ""
	}
	return Sanitize(raw)
}

func (a *Adapter) recognize(ctx context.Context, img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("recognition: %s panicked: %v", a.engine.Name(), r)
		}
	}()
	return a.engine.Recognize(ctx, img)
}

// Empty reports whether img is nil or has no pixels.
func Empty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// Sanitize keeps letters and digits of any script, collapses every run of
// other runes into a single space and trims the result.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	gap := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	return b.String()
}

// Select probes engines in order and returns the first that answers.
func Select(ctx context.Context, engines ...Engine) (Engine, error) {
	candidates := make([]resilience.Candidate[Engine], 0, len(engines))
	for _, e := range engines {
		if e == nil {
			continue
		}
		candidates = append(candidates, resilience.Candidate[Engine]{
			Name:  e.Name(),
			Value: e,
			Probe: e.Probe,
		})
	}
	c, err := resilience.Select(ctx, candidates...)
	if err != nil {
		return nil, fmt.Errorf("recognition: select engine: %w", err)
	}
	return c.Value, nil
}
