// Package canon builds and serves the canonical vocabulary that noisy
// recognised text is reconciled against.
//
// The package has three layers:
//
//  1. [Normalize], the single normalisation function shared by index keys and
//     queries, so both sides live on one alphabet.
//  2. [Index], an immutable lookup structure over one vocabulary (augments or
//     champions) that resolves raw text through an ordered chain of
//     [Strategy] values: exact surface form, normalised key, then fuzzy
//     nearest neighbour above a configurable cutoff.
//  3. [Canonicalizer], which turns one capture cycle's raw readings into a
//     [CandidateSet] and rejects recognition noise as a whole.
//
// An [Index] is never mutated after [Build]; rebuilding means constructing a
// new index and swapping it in through a [Holder].
package canon

import (
	"strings"
	"unicode"
)

// exceptions maps surface forms whose generic normalisation would diverge
// from the canonical id. Keys must contain at least one rune that Normalize
// strips or lower-cases so that Normalize stays idempotent.
var exceptions = map[string]string{
	"MonkeyKing":     "wukong",
	"Nunu & Willump": "nunu",
	"Renata Glasc":   "renata",
}

// Normalize returns the canonical key form of s: every rune that is not a
// letter or digit (in any script) is removed and the rest is lower-cased.
// A small fixed exception table handles entities whose surface form diverges
// from their canonical id.
//
//	Normalize("Kog'Maw")        == "kogmaw"
//	Normalize("전환: 프리즘")     == "전환프리즘"
//	Normalize("MonkeyKing")     == "wukong"
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	if k, ok := exceptions[strings.TrimSpace(s)]; ok {
		return k
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
