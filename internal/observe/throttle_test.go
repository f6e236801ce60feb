package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestThrottleAllow(t *testing.T) {
	th := NewThrottle(10)
	var allowed []uint64
	for range 25 {
		if c, ok := th.Allow(); ok {
			allowed = append(allowed, c)
		}
	}
	want := []uint64{1, 11, 21}
	if len(allowed) != len(want) {
		t.Fatalf("allowed = %v, want %v", allowed, want)
	}
	for i := range want {
		if allowed[i] != want[i] {
			t.Errorf("allowed[%d] = %d, want %d", i, allowed[i], want[i])
		}
	}
	if th.Count() != 25 {
		t.Errorf("Count() = %d", th.Count())
	}
	th.Reset()
	if _, ok := th.Allow(); !ok {
		t.Error("first occurrence after Reset should be allowed")
	}
}

func TestThrottleEveryOne(t *testing.T) {
	th := NewThrottle(0)
	for range 3 {
		if _, ok := th.Allow(); !ok {
			t.Fatal("n < 1 should allow everything")
		}
	}
}

func TestThrottleWarn(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	th := NewThrottle(3)
	for range 4 {
		th.Warn(context.Background(), "capture failed", "err", "no display")
	}
	if got := strings.Count(buf.String(), "capture failed"); got != 2 {
		t.Errorf("logged %d times, want 2:\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "occurrences=4") {
		t.Errorf("missing running count:\n%s", buf.String())
	}
}
