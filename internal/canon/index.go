package canon

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCutoff is the minimum fuzzy similarity accepted by an [Index].
	DefaultCutoff = 0.6

	defaultCacheSize = 512
)

// Entry is one canonical vocabulary item.
type Entry struct {
	// Key is the canonical key, always in [Normalize] form.
	Key string `json:"key"`

	// DisplayName is the first surface form loaded for this key.
	DisplayName string `json:"display_name"`

	// Kind is the vocabulary the entry belongs to ("augment", "champion").
	Kind string `json:"kind,omitempty"`

	// Metadata carries static facts about the entity (English name, tier,
	// win rate, tips). Read-only.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Pair is one displayName → canonicalKey mapping fed to [Build]. Several
// pairs may share a CanonicalKey (e.g. a Korean and an English name).
type Pair struct {
	DisplayName  string
	CanonicalKey string
	Metadata     map[string]string
}

// Option configures [Build].
type Option func(*buildOptions)

type buildOptions struct {
	cutoff    float64
	metric    Metric
	cacheSize int
	kind      string
	chain     []Strategy
}

// WithCutoff sets the minimum fuzzy similarity ratio. Default: 0.6.
func WithCutoff(c float64) Option {
	return func(o *buildOptions) { o.cutoff = c }
}

// WithMetric selects the fuzzy similarity function. Default: Levenshtein.
func WithMetric(m Metric) Option {
	return func(o *buildOptions) { o.metric = m }
}

// WithCacheSize sets the number of fuzzy results memoised per index. Zero
// disables the cache. Default: 512.
func WithCacheSize(n int) Option {
	return func(o *buildOptions) { o.cacheSize = n }
}

// WithKind labels every entry of the index.
func WithKind(kind string) Option {
	return func(o *buildOptions) { o.kind = kind }
}

// WithChain replaces the resolution chain. Default: [DefaultChain].
func WithChain(chain ...Strategy) Option {
	return func(o *buildOptions) { o.chain = chain }
}

// Index resolves raw text to canonical keys. It is immutable after [Build]
// and safe for concurrent use; only the internal LRU cache is mutated and it
// carries its own lock.
type Index struct {
	kind      string
	entries   map[string]Entry
	surface   map[string]string
	aliases   map[string]string
	aliasKeys []string
	cutoff    float64
	metric    Metric
	chain     []Strategy
	cache     *lru.Cache[string, fuzzyHit]
}

// Build constructs an [Index] from pairs. Every display name and canonical
// key is passed through [Normalize] so that index keys and query keys share
// one alphabet. When two different canonical keys normalise to the same alias
// the first one wins.
func Build(pairs []Pair, opts ...Option) (*Index, error) {
	o := buildOptions{
		cutoff:    DefaultCutoff,
		metric:    MetricLevenshtein,
		cacheSize: defaultCacheSize,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.cutoff <= 0 || o.cutoff > 1 {
		return nil, fmt.Errorf("canon: cutoff %.2f out of range (0, 1]", o.cutoff)
	}
	if len(o.chain) == 0 {
		o.chain = DefaultChain()
	}

	ix := &Index{
		kind:    o.kind,
		entries: make(map[string]Entry, len(pairs)),
		surface: make(map[string]string, len(pairs)),
		aliases: make(map[string]string, len(pairs)*2),
		cutoff:  o.cutoff,
		metric:  o.metric,
		chain:   o.chain,
	}

	for _, p := range pairs {
		display := strings.TrimSpace(p.DisplayName)
		key := Normalize(p.CanonicalKey)
		if key == "" {
			key = Normalize(display)
		}
		if key == "" {
			slog.Debug("canon: skipping entry without usable key", "display_name", p.DisplayName)
			continue
		}

		e, ok := ix.entries[key]
		if !ok {
			e = Entry{Key: key, DisplayName: display, Kind: o.kind, Metadata: map[string]string{}}
		}
		for k, v := range p.Metadata {
			if _, exists := e.Metadata[k]; !exists {
				e.Metadata[k] = v
			}
		}
		ix.entries[key] = e

		if display != "" {
			if _, taken := ix.surface[display]; !taken {
				ix.surface[display] = key
			}
		}
		ix.addAlias(key, key)
		ix.addAlias(Normalize(display), key)
	}

	ix.aliasKeys = slices.Sorted(maps.Keys(ix.aliases))

	if o.cacheSize > 0 {
		c, err := lru.New[string, fuzzyHit](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("canon: create cache: %w", err)
		}
		ix.cache = c
	}
	return ix, nil
}

func (ix *Index) addAlias(alias, key string) {
	if alias == "" {
		return
	}
	if prev, taken := ix.aliases[alias]; taken {
		if prev != key {
			slog.Debug("canon: alias collision, keeping first",
				"alias", alias, "kept", prev, "dropped", key)
		}
		return
	}
	ix.aliases[alias] = key
}

// Resolve returns the canonical key for raw and the match confidence. When
// nothing in the chain matches, key is empty and confidence is 0; the index
// never guesses below its cutoff unless a [PhoneticStrategy] is chained.
func (ix *Index) Resolve(raw string) (key string, confidence float64) {
	m, ok := ix.Match(raw)
	if !ok {
		return "", 0
	}
	return m.Key, m.Confidence
}

// Match runs the resolution chain and reports which stage matched.
func (ix *Index) Match(raw string) (Match, bool) {
	normalized := Normalize(raw)
	for _, s := range ix.chain {
		if m, ok := s.Resolve(ix, raw, normalized); ok {
			return m, true
		}
	}
	return Match{}, false
}

// Lookup resolves raw and returns the full entry. The returned metadata map
// is a copy.
func (ix *Index) Lookup(raw string) (Entry, float64, bool) {
	m, ok := ix.Match(raw)
	if !ok {
		return Entry{}, 0, false
	}
	e, ok := ix.Entry(m.Key)
	if !ok {
		return Entry{}, 0, false
	}
	return e, m.Confidence, true
}

// Entry returns the entry stored under the canonical key.
func (ix *Index) Entry(key string) (Entry, bool) {
	e, ok := ix.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.Metadata = maps.Clone(e.Metadata)
	return e, true
}

// Entries returns all entries ordered by key.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, 0, len(ix.entries))
	for _, k := range slices.Sorted(maps.Keys(ix.entries)) {
		e, _ := ix.Entry(k)
		out = append(out, e)
	}
	return out
}

// Len returns the number of canonical entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Kind returns the label passed via [WithKind].
func (ix *Index) Kind() string { return ix.kind }

// Cutoff returns the fuzzy acceptance threshold.
func (ix *Index) Cutoff() float64 { return ix.cutoff }

// Metric returns the fuzzy similarity function.
func (ix *Index) Metric() Metric { return ix.metric }

// Resolver is the read side of an index as consumed by the [Canonicalizer].
type Resolver interface {
	Lookup(raw string) (Entry, float64, bool)
	Len() int
}

var (
	_ Resolver = (*Index)(nil)
	_ Resolver = (*Holder)(nil)
)

// Holder publishes the current [Index] and lets a rebuilt index replace it
// atomically. Readers never observe a partially built index.
type Holder struct {
	p atomic.Pointer[Index]
}

// NewHolder returns a Holder serving ix.
func NewHolder(ix *Index) *Holder {
	h := &Holder{}
	h.p.Store(ix)
	return h
}

// Load returns the index currently served.
func (h *Holder) Load() *Index { return h.p.Load() }

// Swap installs ix and returns the previous index.
func (h *Holder) Swap(ix *Index) *Index { return h.p.Swap(ix) }

// Lookup implements [Resolver] against the current index.
func (h *Holder) Lookup(raw string) (Entry, float64, bool) {
	ix := h.p.Load()
	if ix == nil {
		return Entry{}, 0, false
	}
	return ix.Lookup(raw)
}

// Len implements [Resolver] against the current index.
func (h *Holder) Len() int {
	ix := h.p.Load()
	if ix == nil {
		return 0
	}
	return ix.Len()
}
