// Package state holds the record shared between the capture loop, the
// lifecycle poller and the overlay-facing endpoints.
//
// [Store] is the only cross-worker channel in the process. Readers get a
// deep-copied [Snapshot]; writers replace whole fields under the store's
// mutex, so a partially written record is never observable.
package state

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/pkg/matchclient"
)

// Snapshot is a point-in-time copy of the shared match record.
type Snapshot struct {
	// Active is true while published results are on screen.
	Active bool `json:"active"`

	// Identity is the local player's champion for the current match, empty
	// until known.
	Identity string `json:"identity,omitempty"`

	// Results is the last published candidate set.
	Results canon.CandidateSet `json:"results,omitempty"`

	// LastUpdate is when Results or Active were last written.
	LastUpdate time.Time `json:"last_update"`

	// Phase is the last phase reported by the lifecycle poller, including
	// Unknown.
	Phase matchclient.Phase `json:"-"`

	// PhaseName is Phase rendered for JSON consumers.
	PhaseName string `json:"phase"`

	// Flags carries auxiliary booleans (e.g. "identity_recovered").
	Flags map[string]bool `json:"flags,omitempty"`

	// Generation increases on every Reset.
	Generation uint64 `json:"generation"`
}

// Store is the mutex-guarded shared match record. The zero value is ready to
// use.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Snapshot returns a deep copy of the current record.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Results = cloneSet(s.snap.Results)
	out.Flags = maps.Clone(s.snap.Flags)
	out.PhaseName = s.snap.Phase.String()
	return out
}

// Publish replaces the published results and marks the record active.
func (s *Store) Publish(set canon.CandidateSet) {
	c := cloneSet(set)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Results = c
	s.snap.Active = true
	s.snap.LastUpdate = s.clock()
}

// Deactivate marks the record inactive and drops published results. Identity
// and phase are kept.
func (s *Store) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Results = nil
	s.snap.Active = false
	s.snap.LastUpdate = s.clock()
}

// SetIdentity replaces the local player's identity.
func (s *Store) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Identity = identity
}

// Identity returns the current identity.
func (s *Store) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Identity
}

// SetPhase records the last polled phase.
func (s *Store) SetPhase(p matchclient.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Phase = p
}

// SetFlag sets an auxiliary flag.
func (s *Store) SetFlag(name string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := maps.Clone(s.snap.Flags)
	if flags == nil {
		flags = make(map[string]bool, 1)
	}
	flags[name] = v
	s.snap.Flags = flags
}

// Reset clears everything except the phase and bumps the generation. It
// returns the new generation.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Phase:      s.snap.Phase,
		Generation: s.snap.Generation + 1,
		LastUpdate: s.clock(),
	}
	return s.snap.Generation
}

// Generation returns the number of resets so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Generation
}

// Stale reports whether the record is active but has not been refreshed
// within maxAge. Overlay endpoints use it to hide results the capture loop
// stopped confirming.
func (s *Store) Stale(maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Active && s.clock().Sub(s.snap.LastUpdate) > maxAge
}

func cloneSet(set canon.CandidateSet) canon.CandidateSet {
	if set == nil {
		return nil
	}
	out := slices.Clone(set)
	for i := range out {
		out[i].Metadata = maps.Clone(out[i].Metadata)
	}
	return out
}
