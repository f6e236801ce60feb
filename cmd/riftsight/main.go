// Command riftsight watches the augment selection screen, resolves the
// offered augments against the knowledge base and publishes them to overlay
// consumers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/riftsight/riftsight/internal/app"
	"github.com/riftsight/riftsight/internal/config"
	"github.com/riftsight/riftsight/internal/observe"
	"github.com/riftsight/riftsight/internal/resilience"
	"github.com/riftsight/riftsight/pkg/capture/screen"
	"github.com/riftsight/riftsight/pkg/matchclient/lcu"
	"github.com/riftsight/riftsight/pkg/recognition"
	"github.com/riftsight/riftsight/pkg/recognition/paddle"
	"github.com/riftsight/riftsight/pkg/recognition/tesseract"
	"github.com/riftsight/riftsight/pkg/recognition/vision"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config is expanded")
	display := flag.Int("display", 0, "index of the display to capture")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "riftsight: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Configuration (loaded once by the watcher) ────────────────────────────
	cw, err := config.NewWatcher(*configPath, config.LogChanges(func(l config.LogLevel) {
		level.Set(slogLevel(l))
	}), config.WithReloadSignals(syscall.SIGHUP))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "riftsight: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "riftsight: %v\n", err)
		}
		return 1
	}
	cfg := cw.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("riftsight starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	providers, cleanup, err := buildProviders(ctx, cfg, reg, metrics, *display)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer cleanup()

	printStartupSummary(cfg, providers)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithWorker(cw.Run),
		app.WithReloadSignals(syscall.SIGHUP),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("riftsight ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinEngines registers a factory for every compiled-in
// recognition backend.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterEngine(config.EnginePaddle, func(entry config.EngineEntry) (recognition.Engine, error) {
		opts := []paddle.Option{
			paddle.WithMinScore(entry.OptionFloat("min_score", 0)),
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, paddle.WithLanguage(lang))
		}
		return paddle.New(entry.BaseURL, opts...)
	})

	reg.RegisterEngine(config.EngineTesseract, func(entry config.EngineEntry) (recognition.Engine, error) {
		var opts []tesseract.Option
		if langs := entry.OptionStrings("languages", nil); len(langs) > 0 {
			opts = append(opts, tesseract.WithLanguages(langs...))
		}
		if n := entry.OptionInt("upscale", 0); n > 0 {
			opts = append(opts, tesseract.WithUpscale(n))
		}
		if wl := entry.OptionString("whitelist", ""); wl != "" {
			opts = append(opts, tesseract.WithWhitelist(wl))
		}
		return tesseract.New(opts...)
	})

	reg.RegisterEngine(config.EngineVision, func(entry config.EngineEntry) (recognition.Engine, error) {
		var opts []vision.Option
		if entry.BaseURL != "" {
			opts = append(opts, vision.WithBaseURL(entry.BaseURL))
		}
		if s := entry.OptionString("timeout", ""); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("vision: option timeout: %w", err)
			}
			opts = append(opts, vision.WithTimeout(d))
		}
		if n := entry.OptionInt("max_retries", -1); n >= 0 {
			opts = append(opts, vision.WithMaxRetries(n))
		}
		return vision.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates the capturer, the recognition engine and the
// match client. The returned cleanup closes whatever needs closing.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics, display int) (*app.Providers, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("close error", "err", err)
			}
		}
	}

	engines, err := reg.CreateEngines(cfg.Recognition.Engines)
	if err != nil && len(engines) == 0 {
		return nil, cleanup, err
	}
	if err != nil {
		slog.Warn("some recognition engines could not be created", "err", err)
	}
	engine, err := recognition.Select(ctx, engines...)
	if err != nil {
		closeEngines(engines)
		return nil, cleanup, err
	}
	for _, e := range engines {
		if e == engine {
			if c, ok := e.(io.Closer); ok {
				closers = append(closers, c)
			}
			continue
		}
		closeEngines([]recognition.Engine{e})
	}

	capturer, err := screen.New(screen.WithDisplay(display))
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	p := &app.Providers{Capturer: capturer, Engine: engine}

	if mc := cfg.MatchClient; mc.BaseURL != "" {
		cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "lcu",
			MaxFailures:  mc.BreakerFailures,
			ResetTimeout: mc.BreakerReset,
			HalfOpenMax:  1,
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		})
		client, err := lcu.New(mc.BaseURL, mc.Password,
			lcu.WithTimeout(mc.Timeout),
			lcu.WithBreaker(cb),
		)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		p.MatchClient = client
		p.Breaker = cb
	}

	return p, cleanup, nil
}

func closeEngines(engines []recognition.Engine) {
	for _, e := range engines {
		if c, ok := e.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printStartupSummary(cfg *config.Config, p *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        riftsight startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Engine          : %-19s ║\n", p.Engine.Name())
	if p.MatchClient != nil {
		fmt.Printf("║  Match client    : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Match client    : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Knowledge files : %-19d ║\n", len(cfg.Knowledge.Files))
	if cfg.Knowledge.PostgresDSN != "" {
		fmt.Printf("║  Knowledge DB    : %-19s ║\n", "postgres")
	}
	fmt.Printf("║  Layouts         : %-19d ║\n", len(cfg.Pipeline.Layouts))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}
