// Package paddle implements [recognition.Engine] against a local OCR server
// (a PaddleOCR HTTP wrapper or anything speaking the same protocol).
//
// Protocol:
//
//	GET  /health → 2xx when ready
//	POST /ocr    multipart/form-data, field "image" (PNG), optional "lang"
//	             → {"text": "...", "score": 0.93}
package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/riftsight/riftsight/pkg/recognition"
)

// Name is the engine name used in configuration.
const Name = "paddle"

const defaultTimeout = 2 * time.Second

var _ recognition.Engine = (*Engine)(nil)

// Option configures an [Engine].
type Option func(*Engine)

// WithLanguage sets the language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.lang = lang }
}

// WithMinScore drops results whose score is below s.
func WithMinScore(s float64) Option {
	return func(e *Engine) { e.minScore = s }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(e *Engine) { e.httpClient = hc }
}

// Engine talks to a local OCR server.
type Engine struct {
	serverURL  string
	lang       string
	minScore   float64
	httpClient *http.Client
}

// New returns an Engine for the server at serverURL.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("paddle: server URL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		lang:       "korean",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Name implements [recognition.Engine].
func (e *Engine) Name() string { return Name }

// Probe implements [recognition.Engine].
func (e *Engine) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("paddle: create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paddle: probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paddle: probe: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Recognize implements [recognition.Engine].
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("image", "region.png")
	if err != nil {
		return "", fmt.Errorf("paddle: create form file: %w", err)
	}
	if err := png.Encode(fw, img); err != nil {
		return "", fmt.Errorf("paddle: encode png: %w", err)
	}
	if e.lang != "" {
		if err := mw.WriteField("lang", e.lang); err != nil {
			return "", fmt.Errorf("paddle: write lang field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("paddle: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/ocr", &body)
	if err != nil {
		return "", fmt.Errorf("paddle: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paddle: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paddle: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("paddle: parse JSON response: %w", err)
	}
	if e.minScore > 0 && result.Score < e.minScore {
		return "", nil
	}
	return result.Text, nil
}
