package publish

import (
	"context"

	"github.com/riftsight/riftsight/internal/state"
)

// StoreSink writes payloads into the shared [state.Store]. It is the only
// path through which the capture loop mutates published results.
type StoreSink struct {
	Store *state.Store
}

var _ Publisher = StoreSink{}

// Publish implements [Publisher]. It never fails.
func (s StoreSink) Publish(_ context.Context, p Payload) error {
	if p.Active {
		s.Store.Publish(p.Items)
		return nil
	}
	s.Store.Deactivate()
	return nil
}
