package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/riftsight/riftsight/internal/canon"
)

// Engine names with a built-in constructor.
const (
	EnginePaddle    = "paddle"
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
)

// ValidEngineNames lists the built-in recognition engines. [Validate] warns
// about names outside this list, which may be registered by third parties.
var ValidEngineNames = []string{EnginePaddle, EngineTesseract, EngineVision}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Call it after
// [ApplyDefaults]. It returns a joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be within [0, 1]", r))
	}

	if len(cfg.Knowledge.Files) == 0 && cfg.Knowledge.PostgresDSN == "" {
		slog.Warn("no knowledge base configured; every non-empty reading will be accepted unresolved")
	}
	if cfg.Knowledge.Migrate && cfg.Knowledge.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("knowledge.migrate requires knowledge.postgres_dsn"))
	}

	errs = append(errs, validateEngines(cfg.Recognition.Engines)...)

	if cfg.MatchClient.BaseURL == "" {
		slog.Warn("match_client.base_url is empty; lifecycle tracking is disabled and capture always runs")
	} else if cfg.MatchClient.Password == "" {
		errs = append(errs, fmt.Errorf("match_client.password is required when match_client.base_url is set"))
	}

	errs = append(errs, validatePipeline(&cfg.Pipeline)...)

	if cfg.Lifecycle.IdentityAttempts < 0 {
		errs = append(errs, fmt.Errorf("lifecycle.identity_attempts %d must not be negative", cfg.Lifecycle.IdentityAttempts))
	}

	return errors.Join(errs...)
}

func validateEngines(engines []EngineEntry) []error {
	var errs []error
	if len(engines) == 0 {
		errs = append(errs, fmt.Errorf("recognition.engines must list at least one engine"))
	}
	seen := make(map[string]int, len(engines))
	for i, e := range engines {
		prefix := fmt.Sprintf("recognition.engines[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of recognition.engines[%d]", prefix, e.Name, prev))
		}
		seen[e.Name] = i

		switch e.Name {
		case EnginePaddle:
			if e.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s: engine %q requires base_url", prefix, e.Name))
			}
		case EngineVision:
			if e.BaseURL == "" && e.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s: engine %q requires api_key or base_url", prefix, e.Name))
			}
		case EngineTesseract:
		default:
			slog.Warn("unknown recognition engine name; may be a typo or third-party engine",
				"name", e.Name,
				"known", ValidEngineNames,
			)
		}
	}
	return errs
}

func validatePipeline(p *PipelineConfig) []error {
	var errs []error
	if p.FuzzyCutoff < 0 || p.FuzzyCutoff > 1 {
		errs = append(errs, fmt.Errorf("pipeline.fuzzy_cutoff %.2f is out of range [0, 1]", p.FuzzyCutoff))
	}
	if _, err := canon.ParseMetric(p.Similarity); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.similarity: %w", err))
	}
	positive := []struct {
		name string
		v    int
	}{
		{"cache_size", p.CacheSize},
		{"stability_count", p.StabilityCount},
		{"log_every", p.LogEvery},
		{"min_text_len", p.MinTextLen},
		{"expected_count", p.ExpectedCount},
		{"change_gate.scale", p.ChangeGate.Scale},
	}
	for _, f := range positive {
		if f.v < 1 {
			errs = append(errs, fmt.Errorf("pipeline.%s %d must be at least 1", f.name, f.v))
		}
	}
	for name, d := range map[string]int64{
		"refresh_interval":   int64(p.RefreshInterval),
		"capture_interval":   int64(p.CaptureInterval),
		"lifecycle_interval": int64(p.LifecycleInterval),
		"post_publish_hold":  int64(p.PostPublishHold),
		"error_backoff":      int64(p.ErrorBackoff),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must not be negative", name))
		}
	}
	if p.MinValid < 0 || p.MinValid > p.ExpectedCount {
		errs = append(errs, fmt.Errorf("pipeline.min_valid %d is out of range [0, %d]", p.MinValid, p.ExpectedCount))
	}
	if t := p.ChangeGate.NoiseThreshold; t < 0 || t > 255 {
		errs = append(errs, fmt.Errorf("pipeline.change_gate.noise_threshold %d is out of range [0, 255]", t))
	}
	if p.ChangeGate.Significance < 0 {
		errs = append(errs, fmt.Errorf("pipeline.change_gate.significance %d must not be negative", p.ChangeGate.Significance))
	}

	var widths []int
	for i, l := range p.Layouts {
		prefix := fmt.Sprintf("pipeline.layouts[%d]", i)
		if slices.Contains(widths, l.MinWidth) {
			errs = append(errs, fmt.Errorf("%s.min_width %d is a duplicate", prefix, l.MinWidth))
		}
		widths = append(widths, l.MinWidth)
		if len(l.Regions) != p.ExpectedCount {
			errs = append(errs, fmt.Errorf("%s has %d regions; pipeline.expected_count is %d", prefix, len(l.Regions), p.ExpectedCount))
		}
		for j, r := range l.Regions {
			if r[0] >= r[2] || r[1] >= r[3] {
				errs = append(errs, fmt.Errorf("%s.regions[%d] %v must satisfy x1 < x2 and y1 < y2", prefix, j, r))
			}
		}
	}
	return errs
}
