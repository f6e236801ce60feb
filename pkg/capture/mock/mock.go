// Package mock provides a scripted [capture.Capturer] for tests.
package mock

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/riftsight/riftsight/pkg/capture"
)

// Shot is one scripted Capture result.
type Shot struct {
	Image image.Image
	Err   error
}

// Capturer returns Shots in order; once exhausted the last one repeats.
type Capturer struct {
	mu sync.Mutex

	Shots []Shot

	// CaptureCalls counts Capture calls.
	CaptureCalls int
}

var _ capture.Capturer = (*Capturer)(nil)

// Capture implements capture.Capturer.
func (c *Capturer) Capture(_ context.Context) (capture.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.CaptureCalls
	c.CaptureCalls++
	if len(c.Shots) == 0 {
		return capture.Frame{}, capture.ErrNoDisplay
	}
	if i >= len(c.Shots) {
		i = len(c.Shots) - 1
	}
	s := c.Shots[i]
	if s.Err != nil {
		return capture.Frame{}, s.Err
	}
	return capture.Frame{Image: s.Image, CapturedAt: time.Now()}, nil
}

// SetShots replaces the script and rewinds it. Thread-safe.
func (c *Capturer) SetShots(shots ...Shot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Shots = shots
	c.CaptureCalls = 0
}

// Calls returns the number of Capture calls so far. Thread-safe.
func (c *Capturer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CaptureCalls
}
