package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

var errRefused = errors.New("connect: connection refused")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// breakerHarness drives a breaker with a fake clock and records transitions.
type breakerHarness struct {
	cb          *CircuitBreaker
	clk         *fakeClock
	transitions []string
}

func newHarness(maxFailures, halfOpenMax int) *breakerHarness {
	h := &breakerHarness{clk: &fakeClock{now: time.Unix(0, 0)}}
	h.cb = NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "lcu",
		MaxFailures:  maxFailures,
		ResetTimeout: 5 * time.Second,
		HalfOpenMax:  halfOpenMax,
		Now:          h.clk.Now,
		OnStateChange: func(_ string, from, to State) {
			h.transitions = append(h.transitions, from.String()+"->"+to.String())
		},
	})
	return h
}

func (h *breakerHarness) poll(err error) error {
	return h.cb.Execute(context.Background(), func(context.Context) error { return err })
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3", cb.cfg.MaxFailures, cb.cfg.ResetTimeout, cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

// TestCircuitBreaker_GameClientLifecycle follows a client that goes away
// between matches and comes back.
func TestCircuitBreaker_GameClientLifecycle(t *testing.T) {
	h := newHarness(3, 2)

	// A success in between resets the consecutive count.
	h.poll(errRefused)
	h.poll(errRefused)
	h.poll(nil)
	h.poll(errRefused)
	h.poll(errRefused)
	if got := h.cb.State(); got != StateClosed {
		t.Fatalf("after interleaved failures: %v, want closed", got)
	}

	h.poll(errRefused)
	if got := h.cb.State(); got != StateOpen {
		t.Fatalf("after three in a row: %v, want open", got)
	}

	called := false
	err := h.cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err=%v called=%v, want ErrCircuitOpen without a call", err, called)
	}

	h.clk.Advance(5 * time.Second)
	if got := h.cb.State(); got != StateHalfOpen {
		t.Fatalf("after cool-down: %v, want half-open", got)
	}

	// A failed trial call re-opens for another full cool-down.
	if err := h.poll(errRefused); !errors.Is(err, errRefused) {
		t.Fatalf("trial err = %v", err)
	}
	h.clk.Advance(4 * time.Second)
	if err := h.poll(nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("before second cool-down: %v, want ErrCircuitOpen", err)
	}

	h.clk.Advance(time.Second)
	h.poll(nil)
	if got := h.cb.State(); got != StateHalfOpen {
		t.Fatalf("after one good probe: %v, want half-open", got)
	}
	h.poll(nil)
	if got := h.cb.State(); got != StateClosed {
		t.Fatalf("after two good probes: %v, want closed", got)
	}

	want := []string{
		"closed->open",
		"open->half-open", "half-open->open",
		"open->half-open", "half-open->closed",
	}
	if !slices.Equal(h.transitions, want) {
		t.Errorf("transitions = %v\nwant %v", h.transitions, want)
	}
}

func TestCircuitBreaker_LimitsConcurrentProbes(t *testing.T) {
	h := newHarness(1, 1)
	h.poll(errRefused)
	h.clk.Advance(5 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- h.cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := h.poll(nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if got := h.cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuitBreaker_CancellationIsNeutral(t *testing.T) {
	h := newHarness(2, 1)

	for range 5 {
		h.poll(fmt.Errorf("get /lol-gameflow: %w", context.Canceled))
	}
	if got := h.cb.State(); got != StateClosed {
		t.Fatalf("cancelled requests opened the breaker: %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := h.cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("done ctx: err=%v called=%v", err, called)
	}

	// Timeouts do count: the client is not answering.
	h.poll(context.DeadlineExceeded)
	h.poll(context.DeadlineExceeded)
	if got := h.cb.State(); got != StateOpen {
		t.Errorf("timeouts: state = %v, want open", got)
	}
}

func TestCircuitBreaker_CancelledProbeFreesSlot(t *testing.T) {
	h := newHarness(1, 1)
	h.poll(errRefused)
	h.clk.Advance(5 * time.Second)

	h.poll(context.Canceled)
	if err := h.poll(nil); err != nil {
		t.Fatalf("probe after cancelled probe: %v", err)
	}
	if got := h.cb.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCall(t *testing.T) {
	h := newHarness(1, 1)
	ctx := context.Background()

	phase, err := Call(ctx, h.cb, func(context.Context) (string, error) { return "InProgress", nil })
	if err != nil || phase != "InProgress" {
		t.Fatalf("Call = (%q, %v)", phase, err)
	}
	_, _ = Call(ctx, h.cb, func(context.Context) (string, error) { return "", errRefused })
	phase, err = Call(ctx, h.cb, func(context.Context) (string, error) { return "Lobby", nil })
	if !errors.Is(err, ErrCircuitOpen) || phase != "" {
		t.Fatalf("Call on open breaker = (%q, %v)", phase, err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	h := newHarness(1, 1)
	h.poll(errRefused)
	h.cb.Reset()
	h.cb.Reset()

	if got := h.cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
	if err := h.poll(nil); err != nil {
		t.Fatalf("after reset: %v", err)
	}
	if want := []string{"closed->open", "open->closed"}; !slices.Equal(h.transitions, want) {
		t.Errorf("transitions = %v, want %v", h.transitions, want)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(-1):     "unknown",
		State(99):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(s), got, want)
		}
	}
}
