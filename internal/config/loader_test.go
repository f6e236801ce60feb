package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riftsight/riftsight/internal/config"
	"github.com/riftsight/riftsight/pkg/recognition"
	"github.com/riftsight/riftsight/pkg/recognition/mock"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "riftsight.yaml")
	writeFile(t, path, watcherValidYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognition.Engines[0].Name != "tesseract" {
		t.Errorf("engines = %+v", cfg.Recognition.Engines)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("RIFTSIGHT_TEST_LCU_PASSWORD", "hunter2")
	yaml := `
recognition:
  engines:
    - name: tesseract
match_client:
  base_url: "https://127.0.0.1:2999"
  password: "${RIFTSIGHT_TEST_LCU_PASSWORD}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MatchClient.Password != "hunter2" {
		t.Errorf("password = %q, want expanded value", cfg.MatchClient.Password)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
recognition:
  engines:
    - name: tesseract
pipeline:
  fuzy_cutoff: 0.5
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for misspelled key, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "no engines",
			yaml: `server: {log_level: info}`,
			want: []string{"at least one engine"},
		},
		{
			name: "bad log level",
			yaml: "server: {log_level: loud}\nrecognition: {engines: [{name: tesseract}]}",
			want: []string{"server.log_level"},
		},
		{
			name: "sample ratio above one",
			yaml: "server: {trace_sample_ratio: 1.5}\nrecognition: {engines: [{name: tesseract}]}",
			want: []string{"server.trace_sample_ratio"},
		},
		{
			name: "duplicate engine",
			yaml: "recognition: {engines: [{name: tesseract}, {name: tesseract}]}",
			want: []string{"duplicate"},
		},
		{
			name: "paddle without url",
			yaml: "recognition: {engines: [{name: paddle}]}",
			want: []string{"requires base_url"},
		},
		{
			name: "vision without credentials",
			yaml: "recognition: {engines: [{name: vision}]}",
			want: []string{"requires api_key or base_url"},
		},
		{
			name: "match client without password",
			yaml: "recognition: {engines: [{name: tesseract}]}\nmatch_client: {base_url: 'https://127.0.0.1:2999'}",
			want: []string{"match_client.password"},
		},
		{
			name: "migrate without dsn",
			yaml: "recognition: {engines: [{name: tesseract}]}\nknowledge: {migrate: true}",
			want: []string{"knowledge.migrate"},
		},
		{
			name: "pipeline ranges",
			yaml: `
recognition: {engines: [{name: tesseract}]}
pipeline:
  fuzzy_cutoff: 1.5
  similarity: cosine
  min_valid: 4
  capture_interval: -1s
  change_gate: {noise_threshold: 300}
`,
			want: []string{"fuzzy_cutoff", "similarity", "min_valid", "capture_interval", "noise_threshold"},
		},
		{
			name: "bad layouts",
			yaml: `
recognition: {engines: [{name: tesseract}]}
pipeline:
  layouts:
    - min_width: 0
      regions: [[10, 10, 5, 20], [0, 0, 1, 1], [0, 0, 1, 1]]
    - min_width: 0
      regions: [[0, 0, 1, 1]]
`,
			want: []string{"x1 < x2", "duplicate", "has 1 regions"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_UnknownEngineIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := "recognition: {engines: [{name: easyocr}]}"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("unknown engine names should only warn, got: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterEngine("mock", func(e config.EngineEntry) (recognition.Engine, error) {
		return &mock.Engine{EngineName: e.Name + ":" + e.Model}, nil
	})
	r.RegisterEngine("broken", func(config.EngineEntry) (recognition.Engine, error) {
		return nil, errors.New("no tessdata")
	})

	e, err := r.CreateEngine(config.EngineEntry{Name: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateEngine: %v", err)
	}
	if e.Name() != "mock:m1" {
		t.Errorf("engine name = %q", e.Name())
	}

	if _, err := r.CreateEngine(config.EngineEntry{Name: "paddle"}); !errors.Is(err, config.ErrEngineNotRegistered) {
		t.Errorf("err = %v, want ErrEngineNotRegistered", err)
	}

	engines, err := r.CreateEngines([]config.EngineEntry{{Name: "broken"}, {Name: "mock"}, {Name: "nope"}})
	if len(engines) != 1 {
		t.Errorf("engines = %d, want 1", len(engines))
	}
	if err == nil || !strings.Contains(err.Error(), "no tessdata") || !errors.Is(err, config.ErrEngineNotRegistered) {
		t.Errorf("joined err = %v", err)
	}

	if got := r.Engines(); len(got) != 2 || got[0] != "broken" {
		t.Errorf("Engines() = %v", got)
	}
}
