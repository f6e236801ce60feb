package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/internal/resilience"
	"github.com/riftsight/riftsight/pkg/matchclient"
)

// KnowledgeBase passes once the augment vocabulary served by augments holds
// at least one entry. augments is usually the [canon.Holder] the capture loop
// resolves against, so the check follows reloads. An empty knowledge base
// still runs, but nothing can be resolved.
func KnowledgeBase(augments canon.Resolver) Checker {
	return Checker{
		Name: "knowledge_base",
		Check: func(context.Context) error {
			if augments == nil {
				return errors.New("not loaded")
			}
			if augments.Len() == 0 {
				return errors.New("no augment entries")
			}
			return nil
		},
	}
}

// Engine passes when the selected recognition engine still answers its
// probe.
func Engine(name string, probe func(context.Context) error) Checker {
	return Checker{
		Name: "recognition",
		Check: func(ctx context.Context) error {
			if probe == nil {
				return errors.New("no engine selected")
			}
			if err := probe(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		},
	}
}

// MatchClient reports whether the game client answers a phase query. It is
// optional: readiness does not depend on a game being open. An open breaker
// is reported without issuing a request.
func MatchClient(c matchclient.Client, cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name:     "match_client",
		Optional: true,
		Check: func(ctx context.Context) error {
			if c == nil {
				return errors.New("disabled")
			}
			if cb != nil && cb.State() == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
			_, err := c.Phase(ctx)
			return err
		},
	}
}
