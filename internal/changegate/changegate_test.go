package changegate

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: c, G: c, B: c, A: 255})
		}
	}
	return img
}

func paint(img *image.RGBA, r image.Rectangle, c uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, color.RGBA{R: c, G: c, B: c, A: 255})
		}
	}
}

func TestHasChangedIdentical(t *testing.T) {
	g := New()
	a, b := solid(400, 300, 50), solid(400, 300, 50)
	if g.HasChanged(a, b) {
		t.Error("identical frames reported as changed")
	}
}

func TestHasChangedNilAndSizeMismatch(t *testing.T) {
	g := New()
	curr := solid(100, 100, 0)
	if !g.HasChanged(nil, curr) {
		t.Error("nil previous frame must count as changed")
	}
	if !g.HasChanged(solid(100, 80, 0), curr) {
		t.Error("size mismatch must count as changed")
	}
	if !g.HasChanged(curr, nil) {
		t.Error("nil current frame must count as changed")
	}
}

func TestHasChangedNoiseBelowThreshold(t *testing.T) {
	g := New()
	a, b := solid(400, 300, 100), solid(400, 300, 120)
	if g.HasChanged(a, b) {
		t.Error("uniform shift of 20 should stay under the noise threshold")
	}
}

func TestHasChangedSignificance(t *testing.T) {
	g := New()
	prev := solid(400, 300, 0)

	// 30x30 block -> 3x3 = 9 downsampled pixels, not more than 10.
	small := solid(400, 300, 0)
	paint(small, image.Rect(0, 0, 30, 30), 255)
	if g.HasChanged(prev, small) {
		t.Error("9 changed pixels should not be significant")
	}

	// 40x40 block -> 16 downsampled pixels.
	big := solid(400, 300, 0)
	paint(big, image.Rect(0, 0, 40, 40), 255)
	if !g.HasChanged(prev, big) {
		t.Error("16 changed pixels should be significant")
	}
}

func TestHasChangedRegions(t *testing.T) {
	g := New()
	prev := solid(400, 300, 0)
	curr := solid(400, 300, 0)
	paint(curr, image.Rect(200, 200, 300, 300), 255)

	outside := image.Rect(0, 0, 100, 100)
	inside := image.Rect(200, 200, 300, 300)

	if g.HasChanged(prev, curr, outside) {
		t.Error("change outside the region reported")
	}
	if !g.HasChanged(prev, curr, outside, inside) {
		t.Error("change inside the second region missed")
	}
	// Regions extending past the frame are clipped.
	if !g.HasChanged(prev, curr, image.Rect(200, 200, 1000, 1000)) {
		t.Error("clipped region missed the change")
	}
	if g.HasChanged(prev, curr, image.Rect(500, 500, 600, 600)) {
		t.Error("region entirely outside the frame reported as changed")
	}
}

func TestHasChangedScalesSignificanceToRegions(t *testing.T) {
	g := New()
	prev := solid(960, 540, 0)
	curr := solid(960, 540, 0)
	// One card-sized change: 2x2 downsampled pixels.
	paint(curr, image.Rect(100, 400, 120, 420), 255)

	if g.HasChanged(prev, curr) {
		t.Error("4 changed pixels over the whole frame should not be significant")
	}
	card := image.Rect(40, 380, 240, 480)
	if !g.HasChanged(prev, curr, card) {
		t.Error("the same change inside a small region was missed")
	}
	if g.HasChanged(prev, curr, image.Rect(400, 380, 600, 480)) {
		t.Error("untouched region reported as changed")
	}

	// Regions covering the frame keep the full-frame count.
	left, right := image.Rect(0, 0, 480, 540), image.Rect(480, 0, 960, 540)
	if g.HasChanged(prev, curr, left, right) {
		t.Error("regions spanning the frame should use the full significance count")
	}
}

func TestHasChangedAccumulatesAcrossRegions(t *testing.T) {
	g := New()
	prev := solid(400, 300, 0)
	curr := solid(400, 300, 0)
	// 3x3 downsampled pixels in each half, 18 in total against a count of 10.
	paint(curr, image.Rect(0, 0, 30, 30), 255)
	paint(curr, image.Rect(200, 0, 230, 30), 255)

	left, right := image.Rect(0, 0, 200, 300), image.Rect(200, 0, 400, 300)
	if !g.HasChanged(prev, curr, left, right) {
		t.Error("accumulated count across regions should be significant")
	}
	if g.HasChanged(prev, curr, image.Rect(0, 100, 400, 300)) {
		t.Error("region below both blocks reported as changed")
	}
}

func TestHasChangedDoesNotMutateFrames(t *testing.T) {
	g := New()
	prev := solid(100, 100, 10)
	curr := solid(100, 100, 200)
	before := append([]uint8(nil), curr.Pix...)
	g.HasChanged(prev, curr)
	for i := range before {
		if curr.Pix[i] != before[i] {
			t.Fatal("frame mutated")
		}
	}
}

func TestOptions(t *testing.T) {
	g := New(WithScale(0), WithNoiseThreshold(5), WithSignificance(-3))
	if g.scale != 1 || g.noise != 5 || g.significance != 0 {
		t.Errorf("gate = %+v", g)
	}
	prev, curr := solid(10, 10, 100), solid(10, 10, 110)
	if got := g.Diff(prev, curr, image.Rect(0, 0, 10, 10)); got != 100 {
		t.Errorf("Diff = %d, want 100", got)
	}
}
