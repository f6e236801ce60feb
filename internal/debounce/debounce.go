// Package debounce decides when a recognised candidate set is stable enough
// to publish.
//
// A [Debouncer] requires the same set to be seen on consecutive cycles before
// publishing it, suppresses identical republishes inside a refresh interval,
// and emits exactly one clear when the published set disappears.
package debounce

import (
	"time"

	"github.com/riftsight/riftsight/internal/canon"
)

// Defaults used by [New].
const (
	DefaultRequired = 2
	DefaultRefresh  = 3 * time.Second
)

// State is the debouncer's coarse state.
type State int

const (
	// StateIdle means no candidate is being tracked and nothing is published.
	StateIdle State = iota

	// StateAccumulating means a candidate is being confirmed.
	StateAccumulating

	// StatePublished means the last confirmed candidate has been published.
	StatePublished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do with the current cycle.
type Action int

const (
	// ActionNone means nothing should be emitted.
	ActionNone Action = iota

	// ActionPublish means Decision.Set should be published.
	ActionPublish

	// ActionClear means the previously published set is gone and an inactive
	// result should be published.
	ActionClear
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPublish:
		return "publish"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one [Debouncer.Observe] call.
type Decision struct {
	Action Action
	Set    canon.CandidateSet
}

// Option configures a [Debouncer].
type Option func(*Debouncer)

// WithRequired sets how many consecutive identical sets are needed before
// publishing. Values below 1 are treated as 1.
func WithRequired(n int) Option {
	return func(d *Debouncer) { d.required = max(n, 1) }
}

// WithRefresh sets the heartbeat interval after which an unchanged set is
// published again.
func WithRefresh(r time.Duration) Option {
	return func(d *Debouncer) { d.refresh = r }
}

// Debouncer is the stability state machine. It is driven by a single capture
// loop and is not safe for concurrent use.
type Debouncer struct {
	required int
	refresh  time.Duration

	state         State
	last          canon.CandidateSet
	consecutive   int
	lastPublished canon.CandidateSet
	lastPublishAt time.Time
}

// New returns a Debouncer in the idle state.
func New(opts ...Option) *Debouncer {
	d := &Debouncer{required: DefaultRequired, refresh: DefaultRefresh}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Observe feeds one cycle's candidate set and returns what to emit.
func (d *Debouncer) Observe(set canon.CandidateSet, now time.Time) Decision {
	if set.Empty() {
		d.consecutive = 0
		d.last = nil
		if d.state == StatePublished {
			d.state = StateIdle
			d.lastPublished = nil
			d.lastPublishAt = time.Time{}
			return Decision{Action: ActionClear}
		}
		d.state = StateIdle
		return Decision{}
	}

	if d.last != nil && set.Equal(d.last) {
		d.consecutive++
	} else {
		d.consecutive = 1
		d.last = clone(set)
		if d.state != StatePublished {
			d.state = StateAccumulating
		}
	}

	if d.consecutive < d.required {
		return Decision{}
	}

	changed := d.lastPublished == nil || !set.Equal(d.lastPublished)
	stale := now.Sub(d.lastPublishAt) > d.refresh
	if !changed && !stale {
		return Decision{}
	}

	d.state = StatePublished
	d.lastPublished = clone(set)
	d.lastPublishAt = now
	return Decision{Action: ActionPublish, Set: clone(set)}
}

// State returns the current state.
func (d *Debouncer) State() State { return d.state }

// Consecutive returns how many times in a row the current candidate has been
// observed.
func (d *Debouncer) Consecutive() int { return d.consecutive }

// Reset returns the debouncer to idle without emitting anything.
func (d *Debouncer) Reset() {
	d.state = StateIdle
	d.last = nil
	d.consecutive = 0
	d.lastPublished = nil
	d.lastPublishAt = time.Time{}
}

func clone(s canon.CandidateSet) canon.CandidateSet {
	if s == nil {
		return nil
	}
	out := make(canon.CandidateSet, len(s))
	copy(out, s)
	return out
}
