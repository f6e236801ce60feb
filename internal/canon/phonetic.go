package canon

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultPhoneticThreshold is the Jaro-Winkler score a phonetically aligned
// display name must reach.
const DefaultPhoneticThreshold = 0.70

// PhoneticStrategy matches Latin-script readings whose Double Metaphone codes
// overlap those of a display name, ranked by Jaro-Winkler similarity on the
// lower-cased surface forms. It recovers misreadings such as
// "Infernel Kontract" that stay below the fuzzy cutoff. Hangul and other
// scripts produce no codes and never match here.
//
// It is meant as the last stage of a chain:
//
//	canon.WithChain(append(canon.DefaultChain(), canon.PhoneticStrategy{})...)
type PhoneticStrategy struct {
	// Threshold overrides [DefaultPhoneticThreshold] when positive.
	Threshold float64
}

// Name implements [Strategy].
func (PhoneticStrategy) Name() string { return "phonetic" }

// Resolve implements [Strategy].
func (s PhoneticStrategy) Resolve(ix *Index, raw, _ string) (Match, bool) {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultPhoneticThreshold
	}

	query := strings.ToLower(strings.TrimSpace(raw))
	tokens := strings.Fields(query)
	codes := codesForTokens(tokens)
	if len(codes) == 0 {
		return Match{}, false
	}

	// Sorted so that ties resolve the same way on every call.
	names := make([]string, 0, len(ix.surface))
	for name := range ix.surface {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		best     float64
		bestName string
	)
	for _, name := range names {
		lower := strings.ToLower(name)
		nameTokens := strings.Fields(lower)
		if !codesOverlap(codes, codesForTokens(nameTokens)) {
			continue
		}
		if score := bestJaroWinkler(tokens, nameTokens, query, lower); score >= threshold && score > best {
			best, bestName = score, name
		}
	}
	if bestName == "" {
		return Match{}, false
	}
	return Match{Key: ix.surface[bestName], Confidence: best, Strategy: "phonetic"}, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens,
// without empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		if !hasLatin(t) {
			continue
		}
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func hasLatin(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJaroWinkler scores the full strings and, for multi-word forms, the
// space-stripped strings. Pairwise token scores are not used: a single shared
// word like "of" would otherwise dominate.
func bestJaroWinkler(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
