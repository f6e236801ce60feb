package canon

import "strings"

// Match is the outcome of one successful resolution.
type Match struct {
	// Key is the canonical key of the matched entry.
	Key string

	// Confidence is 1.0 for exact and normalised hits and the similarity
	// ratio for fuzzy hits.
	Confidence float64

	// Strategy names the chain stage that produced the match.
	Strategy string
}

// Strategy is one stage of an [Index] resolution chain. Stages are tried in
// order and the first one that reports ok wins.
//
// raw is the untouched query; normalized is Normalize(raw), computed once per
// query by the index.
type Strategy interface {
	Name() string
	Resolve(ix *Index, raw, normalized string) (Match, bool)
}

// DefaultChain returns the standard resolution order: exact surface form,
// normalised key, fuzzy nearest neighbour.
func DefaultChain() []Strategy {
	return []Strategy{ExactStrategy{}, NormalizedStrategy{}, FuzzyStrategy{}}
}

// ExactStrategy matches the query against display names as loaded.
type ExactStrategy struct{}

// Name implements [Strategy].
func (ExactStrategy) Name() string { return "exact" }

// Resolve implements [Strategy].
func (ExactStrategy) Resolve(ix *Index, raw, _ string) (Match, bool) {
	key, ok := ix.surface[strings.TrimSpace(raw)]
	if !ok {
		return Match{}, false
	}
	return Match{Key: key, Confidence: 1, Strategy: "exact"}, true
}

// NormalizedStrategy matches the normalised query against normalised display
// names and canonical keys.
type NormalizedStrategy struct{}

// Name implements [Strategy].
func (NormalizedStrategy) Name() string { return "normalized" }

// Resolve implements [Strategy].
func (NormalizedStrategy) Resolve(ix *Index, _, normalized string) (Match, bool) {
	if normalized == "" {
		return Match{}, false
	}
	key, ok := ix.aliases[normalized]
	if !ok {
		return Match{}, false
	}
	return Match{Key: key, Confidence: 1, Strategy: "normalized"}, true
}

// FuzzyStrategy picks the alias with the highest similarity ratio to the
// normalised query and accepts it only at or above the index cutoff. Results,
// including misses, are memoised in the index's LRU cache because the same
// OCR text repeats every capture cycle.
type FuzzyStrategy struct{}

// Name implements [Strategy].
func (FuzzyStrategy) Name() string { return "fuzzy" }

// fuzzyHit is a cached fuzzy outcome. ok=false records a miss.
type fuzzyHit struct {
	m  Match
	ok bool
}

// Resolve implements [Strategy].
func (FuzzyStrategy) Resolve(ix *Index, _, normalized string) (Match, bool) {
	if normalized == "" || len(ix.aliasKeys) == 0 {
		return Match{}, false
	}
	if ix.cache != nil {
		if hit, ok := ix.cache.Get(normalized); ok {
			return hit.m, hit.ok
		}
	}

	var (
		best      float64
		bestAlias string
	)
	for _, alias := range ix.aliasKeys {
		if r := ix.metric.Ratio(normalized, alias); r > best {
			best, bestAlias = r, alias
		}
	}

	hit := fuzzyHit{}
	if bestAlias != "" && best >= ix.cutoff {
		hit = fuzzyHit{
			m:  Match{Key: ix.aliases[bestAlias], Confidence: best, Strategy: "fuzzy"},
			ok: true,
		}
	}
	if ix.cache != nil {
		ix.cache.Add(normalized, hit)
	}
	return hit.m, hit.ok
}
