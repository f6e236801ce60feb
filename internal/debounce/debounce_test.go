package debounce

import (
	"testing"
	"time"

	"github.com/riftsight/riftsight/internal/canon"
)

func set(keys ...string) canon.CandidateSet {
	out := make(canon.CandidateSet, len(keys))
	for i, k := range keys {
		out[i] = canon.ResolvedReading{RegionID: i, Key: k, DisplayText: k}
	}
	return out
}

func TestHeartbeat(t *testing.T) {
	d := New()
	t0 := time.Unix(1000, 0)
	s := set("a", "b", "c")

	if got := d.Observe(s, t0); got.Action != ActionNone {
		t.Fatalf("cycle 1 = %v, want none", got.Action)
	}
	if d.State() != StateAccumulating {
		t.Errorf("state after cycle 1 = %v", d.State())
	}
	if got := d.Observe(s, t0.Add(200*time.Millisecond)); got.Action != ActionPublish {
		t.Fatalf("cycle 2 = %v, want publish", got.Action)
	}
	if got := d.Observe(s, t0.Add(400*time.Millisecond)); got.Action != ActionNone {
		t.Fatalf("cycle 3 within refresh = %v, want none", got.Action)
	}
	got := d.Observe(s, t0.Add(3500*time.Millisecond))
	if got.Action != ActionPublish {
		t.Fatalf("cycle 4 after refresh = %v, want publish", got.Action)
	}
	if !got.Set.Equal(s) {
		t.Errorf("published set = %v", got.Set.Names())
	}
}

func TestNeverPublishesBelowRequired(t *testing.T) {
	for _, required := range []int{1, 2, 3, 5} {
		d := New(WithRequired(required))
		now := time.Unix(0, 0)
		seq := []canon.CandidateSet{set("a"), set("b"), set("b"), set("a"), set("a"), set("a"), nil, set("c")}
		for i := 0; i < 4; i++ {
			seq = append(seq, set("c"))
		}
		for i, s := range seq {
			now = now.Add(200 * time.Millisecond)
			got := d.Observe(s, now)
			if got.Action == ActionPublish && d.Consecutive() < required {
				t.Fatalf("required %d: published at step %d with count %d", required, i, d.Consecutive())
			}
		}
	}
}

func TestSingleClear(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	s := set("a", "b", "c")
	d.Observe(s, now)
	if got := d.Observe(s, now.Add(time.Second)); got.Action != ActionPublish {
		t.Fatalf("want publish, got %v", got.Action)
	}

	clears := 0
	for i := range 5 {
		got := d.Observe(nil, now.Add(time.Duration(2+i)*time.Second))
		if got.Action == ActionClear {
			clears++
		}
	}
	if clears != 1 {
		t.Errorf("clears = %d, want 1", clears)
	}
	if d.State() != StateIdle {
		t.Errorf("state = %v, want idle", d.State())
	}
}

func TestNoClearWithoutPublish(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	d.Observe(set("a"), now)
	if got := d.Observe(nil, now.Add(time.Second)); got.Action != ActionNone {
		t.Errorf("clear emitted without prior publish: %v", got.Action)
	}
}

func TestChangedSetPublishesImmediatelyAfterConfirmation(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	d.Observe(set("a"), now)
	d.Observe(set("a"), now.Add(200*time.Millisecond))

	if got := d.Observe(set("b"), now.Add(400*time.Millisecond)); got.Action != ActionNone {
		t.Fatalf("first sighting of new set = %v, want none", got.Action)
	}
	if d.State() != StatePublished {
		t.Errorf("state while confirming replacement = %v, want published", d.State())
	}
	got := d.Observe(set("b"), now.Add(600*time.Millisecond))
	if got.Action != ActionPublish || got.Set[0].Key != "b" {
		t.Errorf("replacement = %+v, want publish of b", got)
	}
}

func TestReset(t *testing.T) {
	d := New()
	now := time.Unix(0, 0)
	d.Observe(set("a"), now)
	d.Observe(set("a"), now.Add(time.Second))
	d.Reset()

	if d.State() != StateIdle || d.Consecutive() != 0 {
		t.Fatalf("after Reset: state %v count %d", d.State(), d.Consecutive())
	}
	if got := d.Observe(nil, now.Add(2*time.Second)); got.Action != ActionNone {
		t.Errorf("Reset must not leave a pending clear, got %v", got.Action)
	}
	d.Observe(set("a"), now.Add(3*time.Second))
	if got := d.Observe(set("a"), now.Add(3200*time.Millisecond)); got.Action != ActionPublish {
		t.Errorf("after Reset the same set should publish again, got %v", got.Action)
	}
}

func TestDecisionSetIsCopy(t *testing.T) {
	d := New(WithRequired(1))
	s := set("a")
	got := d.Observe(s, time.Unix(0, 0))
	got.Set[0].Key = "mutated"
	if d.lastPublished[0].Key != "a" || d.last[0].Key != "a" {
		t.Error("caller mutation leaked into debouncer state")
	}
}
