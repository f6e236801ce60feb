// Package lifecycle tracks the match phase reported by the game client and
// resets shared state between matches.
//
// The [Monitor] polls the client on a fixed interval. A failed or
// unrecognised poll is a sensor gap: it is recorded but never treated as a
// phase transition, so a single missed poll in the middle of a game does not
// wipe the overlay.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftsight/riftsight/internal/observe"
	"github.com/riftsight/riftsight/internal/publish"
	"github.com/riftsight/riftsight/internal/state"
	"github.com/riftsight/riftsight/pkg/matchclient"
)

// Defaults used by [New].
const (
	DefaultInterval         = time.Second
	DefaultIdentityAttempts = 1
	defaultLogEvery         = 10
)

// Reset reasons, as recorded in logs and metrics.
const (
	ReasonSelection = "selection"
	ReasonEndOfGame = "end_of_game"
	ReasonToLobby   = "returned_to_lobby"
)

// FlagIdentityRecovered is set in the store when the identity was recovered
// during a running game rather than observed in champion select.
const FlagIdentityRecovered = "identity_recovered"

// ChampionNamer maps a game client champion id to a display name.
type ChampionNamer func(id int) (string, bool)

// Option configures a [Monitor].
type Option func(*Monitor)

// WithInterval sets the poll interval. Default: 1s.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithPublisher sets where inactive payloads are sent after a reset.
func WithPublisher(p publish.Publisher) Option {
	return func(m *Monitor) { m.pub = p }
}

// WithChampionNamer sets the id → name lookup used for identities.
func WithChampionNamer(fn ChampionNamer) Option {
	return func(m *Monitor) { m.names = fn }
}

// WithGateCapture controls whether [Monitor.Active] follows the phase. When
// false, Active always reports true. Default: true.
func WithGateCapture(gate bool) Option {
	return func(m *Monitor) { m.gateCapture = gate }
}

// WithIdentityAttempts bounds identity recovery queries per match while in
// game. Default: 1, a single recovery query.
func WithIdentityAttempts(n int) Option {
	return func(m *Monitor) { m.maxIdentityAttempts = max(n, 0) }
}

// WithMetrics records polls and resets on met.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Monitor) { m.metrics = met }
}

// WithLogEvery logs only every nth consecutive poll failure. Default: 10.
func WithLogEvery(n int) Option {
	return func(m *Monitor) { m.errLog = observe.NewThrottle(n) }
}

// Monitor is the lifecycle state machine. Run drives it from one goroutine;
// Active and LastObserved may be called from any goroutine.
type Monitor struct {
	client matchclient.Client
	store  *state.Store

	interval            time.Duration
	pub                 publish.Publisher
	names               ChampionNamer
	gateCapture         bool
	maxIdentityAttempts int
	metrics             *observe.Metrics
	errLog              *observe.Throttle

	mu               sync.Mutex
	last             matchclient.Phase
	identityAttempts int

	active atomic.Bool
}

// New returns a Monitor polling client and resetting store.
func New(client matchclient.Client, store *state.Store, opts ...Option) *Monitor {
	m := &Monitor{
		client:              client,
		store:               store,
		interval:            DefaultInterval,
		gateCapture:         true,
		maxIdentityAttempts: DefaultIdentityAttempts,
		errLog:              observe.NewThrottle(defaultLogEvery),
	}
	for _, o := range opts {
		o(m)
	}
	m.active.Store(!m.gateCapture)
	return m
}

// Run polls until ctx is cancelled. It never returns early on a failed poll.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("lifecycle monitor started", "interval", m.interval, "gate_capture", m.gateCapture)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("lifecycle monitor stopped")
			return nil
		case <-t.C:
		}
	}
}

// Poll runs one lifecycle cycle.
func (m *Monitor) Poll(ctx context.Context) {
	phase, err := m.client.Phase(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.errLog.Warn(ctx, "lifecycle: phase query failed", "err", err)
		phase = matchclient.PhaseUnknown
	} else {
		m.errLog.Reset()
	}
	if m.metrics != nil {
		m.metrics.RecordPhasePoll(ctx, phase.String(), err)
	}
	m.store.SetPhase(phase)

	if phase == matchclient.PhaseUnknown {
		return
	}

	m.mu.Lock()
	prev := m.last
	m.last = phase
	m.mu.Unlock()

	if phase != prev {
		slog.Info("lifecycle: phase changed", "from", prev, "to", phase)
		if reason := resetReason(prev, phase); reason != "" {
			m.reset(ctx, reason)
		}
	}

	m.active.Store(!m.gateCapture || phase == matchclient.PhaseInProgress)

	switch phase {
	case matchclient.PhaseSelection:
		m.refreshIdentity(ctx, false)
	case matchclient.PhaseInProgress:
		if m.store.Identity() == "" && m.takeIdentityAttempt() {
			m.refreshIdentity(ctx, true)
		}
	}
}

// resetReason returns why the transition prev → next must clear shared
// state, or "" when it must not.
func resetReason(prev, next matchclient.Phase) string {
	switch {
	case next == matchclient.PhaseSelection:
		return ReasonSelection
	case next == matchclient.PhaseEndOfGame:
		return ReasonEndOfGame
	case prev == matchclient.PhaseInProgress && next == matchclient.PhaseLobby:
		return ReasonToLobby
	}
	return ""
}

func (m *Monitor) reset(ctx context.Context, reason string) {
	gen := m.store.Reset()
	m.mu.Lock()
	m.identityAttempts = 0
	m.mu.Unlock()

	slog.Info("lifecycle: shared state reset", "reason", reason, "generation", gen)
	if m.metrics != nil {
		m.metrics.RecordReset(ctx, reason)
	}
	if m.pub != nil {
		if err := m.pub.Publish(ctx, publish.Inactive("")); err != nil {
			slog.Debug("lifecycle: reset publish failed", "err", err)
		}
	}
}

func (m *Monitor) takeIdentityAttempt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identityAttempts >= m.maxIdentityAttempts {
		return false
	}
	m.identityAttempts++
	return true
}

func (m *Monitor) refreshIdentity(ctx context.Context, recovering bool) {
	id, err := m.client.LocalIdentity(ctx)
	switch {
	case errors.Is(err, matchclient.ErrNoIdentity):
		return
	case err != nil:
		m.errLog.Warn(ctx, "lifecycle: identity query failed", "err", err)
		return
	}

	name := id.ChampionName
	if name == "" && m.names != nil {
		name, _ = m.names(id.ChampionID)
	}
	if name == "" && id.ChampionID > 0 {
		name = strconv.Itoa(id.ChampionID)
	}
	if name == "" || name == m.store.Identity() {
		return
	}
	m.store.SetIdentity(name)
	if recovering {
		m.store.SetFlag(FlagIdentityRecovered, true)
	}
	slog.Info("lifecycle: identity updated", "identity", name, "recovered", recovering)
}

// Active reports whether the capture loop should run.
func (m *Monitor) Active() bool { return m.active.Load() }

// LastObserved returns the last phase that was not Unknown.
func (m *Monitor) LastObserved() matchclient.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
