// Package tesseract implements [recognition.Engine] with the Tesseract OCR
// library through the gosseract CGO bindings. libtesseract and the trained
// data for the configured language must be installed on the host.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/riftsight/riftsight/pkg/recognition"
)

// Name is the engine name used in configuration.
const Name = "tesseract"

var _ recognition.Engine = (*Engine)(nil)

// Option configures an [Engine].
type Option func(*Engine)

// WithLanguages sets the trained-data languages. Default: "kor".
func WithLanguages(langs ...string) Option {
	return func(e *Engine) {
		if len(langs) > 0 {
			e.langs = langs
		}
	}
}

// WithUpscale sets the preprocessing upscale factor. Default: 2.
func WithUpscale(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.upscale = n
		}
	}
}

// WithWhitelist restricts recognised characters.
func WithWhitelist(chars string) Option {
	return func(e *Engine) { e.whitelist = chars }
}

// Engine wraps a single gosseract client. Tesseract handles are not
// goroutine-safe, so calls are serialised.
type Engine struct {
	langs     []string
	upscale   int
	whitelist string

	mu     sync.Mutex
	client *gosseract.Client
}

// New creates the Tesseract handle and applies configuration. The caller
// must Close the engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{langs: []string{"kor"}, upscale: 2}
	for _, o := range opts {
		o(e)
	}

	c := gosseract.NewClient()
	if err := c.SetLanguage(e.langs...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tesseract: set language %v: %w", e.langs, err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tesseract: set page segmentation mode: %w", err)
	}
	if e.whitelist != "" {
		if err := c.SetWhitelist(e.whitelist); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tesseract: set whitelist: %w", err)
		}
	}
	e.client = c
	return e, nil
}

// Name implements [recognition.Engine].
func (e *Engine) Name() string { return Name }

// Probe implements [recognition.Engine]. It checks that the native library
// is linked and reports a version.
func (e *Engine) Probe(_ context.Context) error {
	if v := gosseract.Version(); v == "" {
		return fmt.Errorf("tesseract: library version unavailable")
	}
	return nil
}

// Recognize implements [recognition.Engine].
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Preprocess(img, e.upscale)); err != nil {
		return "", fmt.Errorf("tesseract: encode png: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("tesseract: set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: recognise: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
