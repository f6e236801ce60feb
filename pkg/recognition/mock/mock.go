// Package mock provides a scripted [recognition.Engine] for tests.
//
// Responses are returned in order; once exhausted the last one repeats.
//
//	e := &mock.Engine{Responses: []mock.Response{
//	    {Text: "핵심룬 요술사"},
//	    {Err: errors.New("timeout")},
//	}}
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/riftsight/riftsight/pkg/recognition"
)

// Response is one scripted Recognize result.
type Response struct {
	Text  string
	Err   error
	Panic any
}

// Engine is a mock implementation of recognition.Engine.
type Engine struct {
	mu sync.Mutex

	// EngineName is returned by Name. Defaults to "mock".
	EngineName string

	// ProbeErr, if non-nil, is returned by Probe.
	ProbeErr error

	// Responses is the scripted Recognize sequence.
	Responses []Response

	// ByWidth, if set, overrides Responses: the text returned depends on the
	// width of the image, so tests can tell regions apart.
	ByWidth map[int]string

	// Images records every image passed to Recognize.
	Images []image.Image

	// ProbeCalls counts Probe calls.
	ProbeCalls int
}

var _ recognition.Engine = (*Engine)(nil)

// Name implements recognition.Engine.
func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

// Probe implements recognition.Engine.
func (e *Engine) Probe(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ProbeCalls++
	return e.ProbeErr
}

// Recognize implements recognition.Engine.
func (e *Engine) Recognize(_ context.Context, img image.Image) (string, error) {
	e.mu.Lock()
	i := len(e.Images)
	e.Images = append(e.Images, img)
	if e.ByWidth != nil {
		text := e.ByWidth[img.Bounds().Dx()]
		e.mu.Unlock()
		return text, nil
	}
	if len(e.Responses) == 0 {
		e.mu.Unlock()
		return "", nil
	}
	if i >= len(e.Responses) {
		i = len(e.Responses) - 1
	}
	r := e.Responses[i]
	e.mu.Unlock()

	if r.Panic != nil {
		panic(r.Panic)
	}
	return r.Text, r.Err
}

// SetByWidth replaces the width → text table. Thread-safe.
func (e *Engine) SetByWidth(m map[int]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ByWidth = m
}

// Calls returns the number of Recognize calls so far. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Images)
}
