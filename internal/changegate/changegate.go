// Package changegate decides cheaply whether a captured frame differs enough
// from the previous one to be worth recognising.
//
// Both frames are downsampled with nearest-neighbour sampling into 8-bit
// grayscale, then compared pixel by pixel. A pixel counts as changed when its
// absolute gray difference exceeds the noise threshold; a region counts as
// changed when more than the significance count of its pixels changed.
//
// The significance count is calibrated for the whole frame. When only some
// regions are compared it shrinks in proportion to the sampled area, so a
// change confined to one small region is judged at the same density as a
// full-frame one.
package changegate

import (
	"image"

	"golang.org/x/image/draw"
)

// Defaults used by [New].
const (
	DefaultScale          = 10
	DefaultNoiseThreshold = 30
	DefaultSignificance   = 10
)

// Option configures a [Gate].
type Option func(*Gate)

// WithScale sets the downsampling divisor. Values below 1 are treated as 1.
func WithScale(n int) Option {
	return func(g *Gate) { g.scale = max(n, 1) }
}

// WithNoiseThreshold sets the per-pixel gray difference that must be
// exceeded for a pixel to count as changed.
func WithNoiseThreshold(t uint8) Option {
	return func(g *Gate) { g.noise = t }
}

// WithSignificance sets how many changed downsampled pixels a whole frame
// needs before it is reported as changed.
func WithSignificance(n int) Option {
	return func(g *Gate) { g.significance = max(n, 0) }
}

// Gate compares frames. It holds no state between calls and is safe for
// concurrent use.
type Gate struct {
	scale        int
	noise        uint8
	significance int
}

// New returns a Gate with the given options applied over the defaults.
func New(opts ...Option) *Gate {
	g := &Gate{
		scale:        DefaultScale,
		noise:        DefaultNoiseThreshold,
		significance: DefaultSignificance,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// HasChanged reports whether curr differs significantly from prev.
//
// When regions are given only those rectangles (in frame coordinates) are
// compared; otherwise the whole frame is. Changed pixels accumulate across
// regions and the scan stops as soon as the total passes the significance
// count scaled to the regions' share of the frame. A nil frame on either side, or frames of different sizes, always
// count as changed.
func (g *Gate) HasChanged(prev, curr image.Image, regions ...image.Rectangle) bool {
	if prev == nil || curr == nil || prev.Bounds().Size() != curr.Bounds().Size() {
		return true
	}
	whole := image.Rectangle{Max: curr.Bounds().Size()}
	limit := g.significance
	if len(regions) == 0 {
		regions = []image.Rectangle{whole}
	} else {
		limit = g.limit(curr.Bounds(), whole, regions)
	}
	total := 0
	for _, r := range regions {
		total += g.Diff(prev, curr, r)
		if total > limit {
			return true
		}
	}
	return false
}

// Diff returns the number of changed downsampled pixels in r. It is exposed
// for tuning and tests.
func (g *Gate) Diff(prev, curr image.Image, r image.Rectangle) int {
	a, b := g.sample(prev, r), g.sample(curr, r)
	if a == nil || b == nil {
		return 0
	}
	n := 0
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > int(g.noise) {
			n++
		}
	}
	return n
}

// limit scales the significance count by the sampled area of regions
// relative to the whole frame. It never exceeds the full-frame count.
func (g *Gate) limit(b, whole image.Rectangle, regions []image.Rectangle) int {
	full := g.sampledArea(b, whole)
	if full == 0 {
		return g.significance
	}
	area := 0
	for _, r := range regions {
		area += g.sampledArea(b, r)
	}
	return min(g.significance*area/full, g.significance)
}

// sampledArea is the pixel count of r's downsampled crop, or 0 when r lies
// outside b.
func (g *Gate) sampledArea(b, r image.Rectangle) int {
	w, h := g.sampledSize(b, r)
	return w * h
}

func (g *Gate) sampledSize(b, r image.Rectangle) (w, h int) {
	src := r.Add(b.Min).Intersect(b)
	if src.Empty() {
		return 0, 0
	}
	return max(src.Dx()/g.scale, 1), max(src.Dy()/g.scale, 1)
}

// sample crops r (relative to the image origin) out of img, clipped to the
// image bounds, and downsamples it to grayscale.
func (g *Gate) sample(img image.Image, r image.Rectangle) *image.Gray {
	b := img.Bounds()
	src := r.Add(b.Min).Intersect(b)
	if src.Empty() {
		return nil
	}
	w, h := g.sampledSize(b, r)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
