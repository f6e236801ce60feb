// Package capture grabs screen frames and cuts them into regions of
// interest.
//
// Region coordinates depend on the game's resolution. A [Layout] pins the
// regions for one resolution class; [Layouts.ForWidth] picks the layout for
// a captured frame.
package capture

import (
	"context"
	"errors"
	"image"
	"slices"
	"time"
)

// ErrNoDisplay is returned when no display is available to capture.
var ErrNoDisplay = errors.New("capture: no active display")

// Frame is one captured screen image.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Capturer grabs frames. Implementations must be safe to call from a single
// goroutine repeatedly; concurrent use is not required.
type Capturer interface {
	Capture(ctx context.Context) (Frame, error)
}

// Region is one region of interest cut from a frame.
type Region struct {
	ID         int
	Image      image.Image
	CapturedAt time.Time
}

// Layout lists the regions of interest for frames at least MinWidth wide.
type Layout struct {
	MinWidth int
	Regions  []image.Rectangle
}

// Layouts is a set of layouts for different resolutions.
type Layouts []Layout

// DefaultLayouts covers 1080p and 1440p clients. The rectangles are the
// three augment title boxes on the augment-choice screen.
func DefaultLayouts() Layouts {
	return Layouts{
		{MinWidth: 0, Regions: []image.Rectangle{
			image.Rect(474, 412, 740, 447),
			image.Rect(824, 412, 1093, 447),
			image.Rect(1180, 412, 1447, 447),
		}},
		{MinWidth: 2500, Regions: []image.Rectangle{
			image.Rect(789, 410, 1063, 448),
			image.Rect(1143, 414, 1413, 446),
			image.Rect(1500, 413, 1767, 447),
		}},
	}
}

// ForWidth returns the regions of the layout with the largest MinWidth not
// above width, or nil when none applies.
func (ls Layouts) ForWidth(width int) []image.Rectangle {
	best := -1
	for i, l := range ls {
		if l.MinWidth <= width && (best < 0 || l.MinWidth > ls[best].MinWidth) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return slices.Clone(ls[best].Regions)
}

// Expected returns the number of regions monitored at width.
func (ls Layouts) Expected(width int) int {
	return len(ls.ForWidth(width))
}

// subImager is implemented by every concrete image type in the standard
// library.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop cuts the given regions out of f. Regions are offset by the frame's
// origin and clipped to its bounds; a region entirely outside the frame
// yields an empty image. The returned images share pixels with f.
func Crop(f Frame, regions []image.Rectangle) []Region {
	out := make([]Region, len(regions))
	for i, r := range regions {
		out[i] = Region{ID: i, CapturedAt: f.CapturedAt}
		if f.Image == nil {
			continue
		}
		b := f.Image.Bounds()
		abs := r.Add(b.Min).Intersect(b)
		if si, ok := f.Image.(subImager); ok {
			out[i].Image = si.SubImage(abs)
			continue
		}
		rgba := image.NewRGBA(abs)
		for y := abs.Min.Y; y < abs.Max.Y; y++ {
			for x := abs.Min.X; x < abs.Max.X; x++ {
				rgba.Set(x, y, f.Image.At(x, y))
			}
		}
		out[i].Image = rgba
	}
	return out
}
