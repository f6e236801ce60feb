package canon

import (
	"unicode/utf8"
)

const defaultMinTextLen = 2

// RawReading is the text recognised in one region of interest during one
// capture cycle.
type RawReading struct {
	RegionID int
	Text     string
}

// ResolvedReading is a [RawReading] after canonicalisation. An empty Key
// means the text was recognised but matched nothing; DisplayText still
// carries the raw text so the overlay can show it.
type ResolvedReading struct {
	RegionID    int               `json:"region"`
	Key         string            `json:"key,omitempty"`
	DisplayText string            `json:"text"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Resolved reports whether the reading matched a canonical entry.
func (r ResolvedReading) Resolved() bool { return r.Key != "" }

// CandidateSet is the ordered set of readings of one cycle. It is either
// complete (one reading per monitored region) or empty.
type CandidateSet []ResolvedReading

// Empty reports whether the set carries no readings.
func (s CandidateSet) Empty() bool { return len(s) == 0 }

// Equal compares two sets by content: region, canonical key and display text,
// in order. Confidence and metadata are derived and ignored.
func (s CandidateSet) Equal(o CandidateSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		a, b := s[i], o[i]
		if a.RegionID != b.RegionID || a.Key != b.Key || a.DisplayText != b.DisplayText {
			return false
		}
	}
	return true
}

// Names returns the display texts in order.
func (s CandidateSet) Names() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.DisplayText
	}
	return out
}

// CanonicalizerOption configures a [Canonicalizer].
type CanonicalizerOption func(*Canonicalizer)

// WithMinTextLen sets the minimum normalised rune count below which a
// reading is treated as noise and dropped. Default: 2.
func WithMinTextLen(n int) CanonicalizerOption {
	return func(c *Canonicalizer) { c.minTextLen = n }
}

// WithMinValid sets how many readings of a set must resolve for the set to
// be accepted. Zero (the default) means a strict majority of the expected
// count.
func WithMinValid(n int) CanonicalizerOption {
	return func(c *Canonicalizer) { c.minValid = n }
}

// Canonicalizer turns raw readings into a validated [CandidateSet].
// It holds no per-cycle state and is safe for concurrent use.
type Canonicalizer struct {
	resolver   Resolver
	minTextLen int
	minValid   int
}

// NewCanonicalizer returns a Canonicalizer resolving against r.
func NewCanonicalizer(r Resolver, opts ...CanonicalizerOption) *Canonicalizer {
	c := &Canonicalizer{resolver: r, minTextLen: defaultMinTextLen}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ResolveCandidateSet canonicalises raw and applies the two-stage validity
// gate:
//
//  1. after dropping readings shorter than the minimum length, exactly
//     expected readings must remain;
//  2. at least the configured number of them (a strict majority by default)
//     must resolve against the index.
//
// Readings that fail to resolve are kept with an empty key. When either gate
// fails the result is an empty set, never a partial one. With an empty
// vocabulary every reading counts as valid.
func (c *Canonicalizer) ResolveCandidateSet(raw []RawReading, expected int) CandidateSet {
	if expected <= 0 {
		return nil
	}

	set := make(CandidateSet, 0, len(raw))
	resolved := 0
	for _, r := range raw {
		if utf8.RuneCountInString(Normalize(r.Text)) < c.minTextLen {
			continue
		}
		rr := ResolvedReading{RegionID: r.RegionID, DisplayText: r.Text}
		if e, conf, ok := c.resolver.Lookup(r.Text); ok {
			rr.Key = e.Key
			rr.Confidence = conf
			rr.Metadata = e.Metadata
			resolved++
		}
		set = append(set, rr)
	}

	if len(set) != expected {
		return nil
	}
	if c.resolver.Len() == 0 {
		return set
	}
	if resolved < c.required(expected) {
		return nil
	}
	return set
}

func (c *Canonicalizer) required(expected int) int {
	if c.minValid > 0 {
		return min(c.minValid, expected)
	}
	return expected/2 + 1
}
