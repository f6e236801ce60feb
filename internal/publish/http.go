package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPublisher POSTs payloads as JSON to the overlay's update endpoint.
type HTTPPublisher struct {
	url        string
	httpClient *http.Client
}

var _ Publisher = (*HTTPPublisher)(nil)

// HTTPOption configures an [HTTPPublisher].
type HTTPOption func(*HTTPPublisher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(p *HTTPPublisher) { p.httpClient = hc }
}

// NewHTTPPublisher returns a publisher for url (e.g.
// "http://127.0.0.1:5000/augments/update"). timeout <= 0 selects
// [DefaultTimeout].
func NewHTTPPublisher(url string, timeout time.Duration, opts ...HTTPOption) (*HTTPPublisher, error) {
	if url == "" {
		return nil, errors.New("publish: http url must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &HTTPPublisher{url: url, httpClient: &http.Client{Timeout: timeout}}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Publish implements [Publisher].
func (p *HTTPPublisher) Publish(ctx context.Context, pl Payload) error {
	body, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("publish: http: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("publish: http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish: http: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("publish: http: unexpected status %d", resp.StatusCode)
	}
	return nil
}
