// Package vision implements [recognition.Engine] on top of an
// OpenAI-compatible chat completion endpoint that accepts image input.
//
// It is the slowest engine and is only meant as a last fallback, or for
// pointing at a local vision model through base_url.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/riftsight/riftsight/pkg/recognition"
)

// Name is the engine name used in configuration.
const Name = "vision"

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

const prompt = "Transcribe the single line of game UI text in this image exactly as shown. " +
	"Reply with the text only. Reply with nothing if there is no text."

var _ recognition.Engine = (*Engine)(nil)

type config struct {
	baseURL string
	timeout time.Duration
	retries int
}

// Option configures an [Engine].
type Option func(*config)

// WithBaseURL points the client at a different OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets the client retry count. Default: 0.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.retries = n }
}

// Engine sends each region to a vision-capable chat model.
type Engine struct {
	client oai.Client
	model  string
}

// New returns an Engine. apiKey may be empty for local servers that do not
// check it.
func New(apiKey, model string, opts ...Option) (*Engine, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{timeout: 5 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, fmt.Errorf("vision: api key must not be empty without a base URL")
	}
	if apiKey == "" {
		apiKey = "unused"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.retries),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Engine{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Name implements [recognition.Engine].
func (e *Engine) Name() string { return Name }

// Probe implements [recognition.Engine] by listing models.
func (e *Engine) Probe(ctx context.Context) error {
	if _, err := e.client.Models.List(ctx); err != nil {
		return fmt.Errorf("vision: probe: %w", err)
	}
	return nil
}

// Recognize implements [recognition.Engine].
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	url, err := dataURL(img)
	if err != nil {
		return "", err
	}

	resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL:    url,
					Detail: "low",
				}),
			}),
		},
		MaxCompletionTokens: param.NewOpt(int64(64)),
		Temperature:         param.NewOpt(0.0),
	})
	if err != nil {
		return "", fmt.Errorf("vision: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("vision: encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
