package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/riftsight/riftsight/pkg/recognition"
)

// ErrEngineNotRegistered is returned by [Registry.CreateEngine] when no
// factory has been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// EngineFactory builds a recognition engine from its configuration entry.
type EngineFactory func(EngineEntry) (recognition.Engine, error)

// Registry maps engine names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]EngineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]EngineFactory)}
}

// RegisterEngine registers an engine factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// CreateEngine instantiates the engine registered under entry.Name.
// Returns [ErrEngineNotRegistered] if no factory has been registered for that
// name.
func (r *Registry) CreateEngine(entry EngineEntry) (recognition.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotRegistered, entry.Name)
	}
	e, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create engine %q: %w", entry.Name, err)
	}
	return e, nil
}

// CreateEngines instantiates every entry in order. Entries that fail to
// construct are skipped and their errors joined; the caller decides whether
// an empty result is fatal.
func (r *Registry) CreateEngines(entries []EngineEntry) ([]recognition.Engine, error) {
	var (
		out  []recognition.Engine
		errs []error
	)
	for _, e := range entries {
		eng, err := r.CreateEngine(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, eng)
	}
	return out, errors.Join(errs...)
}

// Engines returns the registered engine names, sorted.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
