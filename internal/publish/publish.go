// Package publish delivers accepted results to the shared state and to the
// external overlay.
//
// Delivery is best effort: every [Publisher] call carries a short timeout,
// is never retried, and failures are logged and swallowed by [Fanout]. The
// overlay applies its own staleness timeout, so a missed update is repaired
// by the next heartbeat.
package publish

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/riftsight/riftsight/internal/canon"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 500 * time.Millisecond

// Payload is one push to the overlay.
type Payload struct {
	// ID is unique per payload so consumers can drop duplicates.
	ID string `json:"id"`

	// Active is false for clears and lifecycle resets.
	Active bool `json:"active"`

	// Items is the published candidate set; empty when inactive.
	Items canon.CandidateSet `json:"items"`

	// Names repeats the display texts of Items in order, for consumers that
	// only render titles.
	Names []string `json:"names_ko"`

	// Identity is the local player's champion, if known.
	Identity string `json:"champion,omitempty"`

	// At is when the payload was built.
	At time.Time `json:"at"`
}

// NewPayload builds an active payload carrying set.
func NewPayload(set canon.CandidateSet, identity string) Payload {
	return Payload{
		ID:       uuid.NewString(),
		Active:   true,
		Items:    set,
		Names:    set.Names(),
		Identity: identity,
		At:       time.Now(),
	}
}

// Inactive builds a payload that tells consumers to hide results.
func Inactive(identity string) Payload {
	return Payload{
		ID:       uuid.NewString(),
		Identity: identity,
		Names:    []string{},
		At:       time.Now(),
	}
}

// Action names the payload kind for logs and metrics.
func (p Payload) Action() string {
	if p.Active {
		return "publish"
	}
	return "clear"
}

// Publisher delivers payloads. Implementations must be safe for concurrent
// use.
type Publisher interface {
	Publish(ctx context.Context, p Payload) error
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(ctx context.Context, p Payload) error

// Publish implements [Publisher].
func (f PublisherFunc) Publish(ctx context.Context, p Payload) error { return f(ctx, p) }
