// Package app wires all riftsight subsystems into a running application.
//
// The App struct owns the full lifecycle: New loads the knowledge base and
// builds the workers, Run executes them under one errgroup, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles through [Providers] and the functional options
// (WithKnowledgeBase, WithSinks, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/internal/changegate"
	"github.com/riftsight/riftsight/internal/config"
	"github.com/riftsight/riftsight/internal/debounce"
	"github.com/riftsight/riftsight/internal/health"
	"github.com/riftsight/riftsight/internal/lifecycle"
	"github.com/riftsight/riftsight/internal/observe"
	"github.com/riftsight/riftsight/internal/publish"
	"github.com/riftsight/riftsight/internal/resilience"
	"github.com/riftsight/riftsight/internal/state"
	"github.com/riftsight/riftsight/internal/watcher"
	"github.com/riftsight/riftsight/pkg/capture"
	"github.com/riftsight/riftsight/pkg/matchclient"
	"github.com/riftsight/riftsight/pkg/recognition"
)

// Providers holds the external collaborators. Populated by main.go from the
// config registry.
type Providers struct {
	// Capturer grabs screen frames. Required.
	Capturer capture.Capturer

	// Engine is the selected recognition backend. Required.
	Engine recognition.Engine

	// MatchClient queries the game client. Nil disables lifecycle tracking:
	// capture then runs ungated and identity stays empty.
	MatchClient matchclient.Client

	// Breaker guards MatchClient. Optional; used by the readiness check.
	Breaker *resilience.CircuitBreaker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Knowledge base: the current one, the holder serving its augment index
	// and the sources a reload re-reads.
	kb            atomic.Pointer[canon.KnowledgeBase]
	augments      *canon.Holder
	injectedKB    *canon.KnowledgeBase
	sources       []canon.Source
	indexOpts     []canon.Option
	reloadSignals []os.Signal

	// Subsystems, initialised in New and torn down in Shutdown.
	store   *state.Store
	metrics *observe.Metrics
	sinks   []publish.Sink
	fanout  *publish.Fanout
	monitor *lifecycle.Monitor
	watcher *watcher.Watcher
	health  *health.Handler
	server  *http.Server
	workers []func(context.Context) error

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeBase injects a knowledge base instead of loading one from the
// configured sources. An injected knowledge base cannot be reloaded.
func WithKnowledgeBase(kb *canon.KnowledgeBase) Option {
	return func(a *App) { a.injectedKB = kb }
}

// WithReloadSignals makes Run reload the knowledge base whenever the process
// receives one of sigs.
func WithReloadSignals(sigs ...os.Signal) Option {
	return func(a *App) { a.reloadSignals = append(a.reloadSignals, sigs...) }
}

// WithStore injects the shared match state.
func WithStore(s *state.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSinks adds publication sinks next to the ones built from config.
func WithSinks(sinks ...publish.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, sinks...) }
}

// WithWorker adds a function run alongside the capture loop and the
// lifecycle poller (e.g. the config watcher). It must return when ctx is
// cancelled.
func WithWorker(fn func(ctx context.Context) error) Option {
	return func(a *App) { a.workers = append(a.workers, fn) }
}

// New creates an App by wiring all subsystems together. Knowledge-base
// loading happens synchronously; a knowledge base that cannot be read is a
// startup error.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Capturer == nil || providers.Engine == nil {
		return nil, errors.New("app: capturer and recognition engine are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.store == nil {
		a.store = state.New()
	}

	if err := a.initKnowledge(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init knowledge base: %w", err)
	}
	if err := a.initPublishers(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init publishers: %w", err)
	}
	a.initMonitor()
	a.initWatcher()

	checkers := []health.Checker{
		health.KnowledgeBase(a.augments),
		health.Engine(providers.Engine.Name(), providers.Engine.Probe),
	}
	if providers.MatchClient != nil {
		checkers = append(checkers, health.MatchClient(providers.MatchClient, providers.Breaker))
	}
	a.health = health.New(checkers...)

	return a, nil
}

func (a *App) initPublishers() error {
	sinks := []publish.Sink{{Name: "state", Publisher: publish.StoreSink{Store: a.store}}}

	if url := a.cfg.Publish.HTTPURL; url != "" {
		p, err := publish.NewHTTPPublisher(url, a.cfg.Publish.Timeout)
		if err != nil {
			return err
		}
		sinks = append(sinks, publish.Sink{Name: "http", Publisher: p})
	}
	if url := a.cfg.Publish.WSURL; url != "" {
		p, err := publish.NewWSPublisher(url)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, p.Close)
		sinks = append(sinks, publish.Sink{Name: "ws", Publisher: p})
	}

	if path := a.cfg.Publish.JournalPath; path != "" {
		sinks = append(sinks, publish.Sink{Name: "journal", Publisher: publish.NewJournal(path)})
	}

	a.sinks = append(sinks, a.sinks...)
	a.fanout = publish.NewFanout(a.sinks,
		publish.WithTimeout(a.cfg.Publish.Timeout),
		publish.WithMetrics(a.metrics),
	)
	return nil
}

func (a *App) initMonitor() {
	if a.providers.MatchClient == nil {
		slog.Warn("no match client configured; lifecycle tracking disabled")
		return
	}
	lc := a.cfg.Lifecycle
	a.monitor = lifecycle.New(a.providers.MatchClient, a.store,
		lifecycle.WithInterval(a.cfg.Pipeline.LifecycleInterval),
		lifecycle.WithPublisher(a.fanout),
		lifecycle.WithChampionNamer(liveKnowledge{a}.ChampionName),
		lifecycle.WithGateCapture(lc.CaptureGated()),
		lifecycle.WithIdentityAttempts(lc.IdentityAttempts),
		lifecycle.WithMetrics(a.metrics),
		lifecycle.WithLogEvery(a.cfg.Pipeline.LogEvery),
	)
}

func (a *App) initWatcher() {
	p := a.cfg.Pipeline

	cz := canon.NewCanonicalizer(a.augments,
		canon.WithMinTextLen(p.MinTextLen),
		canon.WithMinValid(p.MinValid),
	)
	extractor := recognition.NewAdapter(a.providers.Engine,
		recognition.WithMetrics(a.metrics),
		recognition.WithLogEvery(p.LogEvery),
	)
	gate := changegate.New(
		changegate.WithScale(p.ChangeGate.Scale),
		changegate.WithNoiseThreshold(uint8(p.ChangeGate.NoiseThreshold)),
		changegate.WithSignificance(p.ChangeGate.Significance),
	)
	deb := debounce.New(
		debounce.WithRequired(p.StabilityCount),
		debounce.WithRefresh(p.RefreshInterval),
	)

	opts := []watcher.Option{
		watcher.WithInterval(p.CaptureInterval),
		watcher.WithHold(p.PostPublishHold),
		watcher.WithBackoff(p.ErrorBackoff),
		watcher.WithLayouts(p.CaptureLayouts()),
		watcher.WithGate(gate),
		watcher.WithDebouncer(deb),
		watcher.WithMetrics(a.metrics),
		watcher.WithLogEvery(p.LogEvery),
		watcher.WithEnricher(liveKnowledge{a}),
	}
	if a.monitor != nil {
		opts = append(opts, watcher.WithActivity(a.monitor))
	}
	a.watcher = watcher.New(a.providers.Capturer, extractor, cz, a.store, a.fanout, opts...)
}

// Store returns the shared match state.
func (a *App) Store() *state.Store { return a.store }

// KnowledgeBase returns the current knowledge base.
func (a *App) KnowledgeBase() *canon.KnowledgeBase { return a.kb.Load() }

// Handler returns the HTTP surface: /healthz, /readyz, /metrics and /state,
// instrumented with [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.Handler())
	mux.HandleFunc("GET /state", a.handleState)
	return observe.Middleware(a.metrics)(mux)
}

// stateResponse is the /state body.
type stateResponse struct {
	state.Snapshot
	Stale bool `json:"stale,omitempty"`
}

// handleState serves the current snapshot. Results the capture loop has not
// confirmed within publish.stale_after are withheld.
func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	stale := a.store.Stale(a.cfg.Publish.StaleAfter)
	res := stateResponse{Snapshot: a.store.Snapshot(), Stale: stale}
	if stale {
		res.Active = false
		res.Results = nil
	}
	writeJSON(w, http.StatusOK, res)
}

// Run starts the capture loop, the lifecycle poller, any extra workers and,
// when server.listen_addr is set, the HTTP server. It blocks until ctx is
// cancelled or a worker fails.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.watcher.Run(gctx) })
	if a.monitor != nil {
		g.Go(func() error { return a.monitor.Run(gctx) })
	}
	for _, fn := range a.workers {
		g.Go(func() error { return fn(gctx) })
	}
	if len(a.reloadSignals) > 0 {
		g.Go(func() error { return a.reloadOnSignal(gctx) })
	}

	if ln != nil {
		a.server = &http.Server{
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
		slog.Info("http server listening", "addr", ln.Addr().String())
	}

	slog.Info("app running",
		"engine", a.providers.Engine.Name(),
		"sinks", a.fanout.Len(),
		"lifecycle", a.monitor != nil,
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown publishes a final clear so overlays do not keep stale results,
// then closes all subsystems in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.store.Snapshot().Active {
			if perr := a.fanout.Publish(ctx, publish.Inactive(a.store.Identity())); perr != nil {
				slog.Warn("final clear failed", "err", perr)
			}
		}
		err = a.closeAll()
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		if cerr := c(); cerr != nil {
			errs = append(errs, cerr)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("app: shutdown: %w", errors.Join(errs...))
	}
	return nil
}
