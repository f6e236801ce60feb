// Package screen implements [capture.Capturer] for the local desktop using
// kbinani/screenshot.
package screen

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/riftsight/riftsight/pkg/capture"
)

var _ capture.Capturer = (*Capturer)(nil)

// Option configures a [Capturer].
type Option func(*Capturer)

// WithDisplay selects the display index. Default: 0 (primary).
func WithDisplay(i int) Option {
	return func(c *Capturer) { c.display = i }
}

// WithBounds captures a fixed rectangle instead of the whole display, e.g.
// the game window when running windowed.
func WithBounds(r image.Rectangle) Option {
	return func(c *Capturer) { c.bounds = r }
}

// Capturer grabs the primary display (or a fixed rectangle).
type Capturer struct {
	display int
	bounds  image.Rectangle
}

// New returns a Capturer. It fails with [capture.ErrNoDisplay] when the
// requested display does not exist.
func New(opts ...Option) (*Capturer, error) {
	c := &Capturer{}
	for _, o := range opts {
		o(c)
	}
	if c.bounds.Empty() {
		n := screenshot.NumActiveDisplays()
		if c.display < 0 || c.display >= n {
			return nil, fmt.Errorf("screen: display %d of %d: %w", c.display, n, capture.ErrNoDisplay)
		}
	}
	return c, nil
}

// Capture implements [capture.Capturer]. The returned image has its origin
// at (0, 0) relative to the captured area.
func (c *Capturer) Capture(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}
	r := c.bounds
	if r.Empty() {
		r = screenshot.GetDisplayBounds(c.display)
	}
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("screen: capture %v: %w", r, err)
	}
	return capture.Frame{Image: rebase(img), CapturedAt: time.Now()}, nil
}

// rebase moves img's origin to (0, 0) without copying pixels.
func rebase(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	out := *img
	out.Rect = img.Rect.Sub(img.Rect.Min)
	return &out
}
