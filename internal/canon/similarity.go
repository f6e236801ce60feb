package canon

import (
	"fmt"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Metric selects the string-similarity function used by the fuzzy stage.
type Metric int

const (
	// MetricLevenshtein scores 1 - distance/maxLen over runes. It behaves well
	// for OCR substitutions in short Hangul strings, where one wrong syllable
	// should still match.
	MetricLevenshtein Metric = iota

	// MetricJaroWinkler uses Jaro-Winkler similarity, which rewards shared
	// prefixes and suits Latin-script names.
	MetricJaroWinkler
)

// String returns the configuration name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricLevenshtein:
		return "levenshtein"
	case MetricJaroWinkler:
		return "jaro-winkler"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// ParseMetric maps a configuration name to a [Metric]. The empty string
// selects [MetricLevenshtein].
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "levenshtein":
		return MetricLevenshtein, nil
	case "jaro-winkler", "jarowinkler":
		return MetricJaroWinkler, nil
	}
	return 0, fmt.Errorf("canon: unknown similarity metric %q", s)
}

// Ratio returns the similarity of a and b in [0, 1]. Two empty strings are
// identical; one empty string against a non-empty one scores 0.
func (m Metric) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	switch m {
	case MetricJaroWinkler:
		return matchr.JaroWinkler(a, b, false)
	default:
		la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
		longest := max(la, lb)
		d := matchr.Levenshtein(a, b)
		r := 1 - float64(d)/float64(longest)
		if r < 0 {
			return 0
		}
		return r
	}
}
