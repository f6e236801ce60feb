package canon

import "testing"

func TestRatioLevenshtein(t *testing.T) {
	m := MetricLevenshtein
	if r := m.Ratio("abc", "abc"); r != 1 {
		t.Errorf("identical = %v, want 1", r)
	}
	if r := m.Ratio("", "abc"); r != 0 {
		t.Errorf("empty = %v, want 0", r)
	}
	// One substituted syllable out of six.
	r := m.Ratio("핵심분요술사", "핵심룬요술사")
	if r < 0.83 || r > 0.84 {
		t.Errorf("hangul substitution = %v, want ~0.833", r)
	}
	if r := m.Ratio("가짜명", "핵심룬요술사"); r != 0 {
		t.Errorf("unrelated = %v, want 0", r)
	}
}

func TestRatioJaroWinkler(t *testing.T) {
	m := MetricJaroWinkler
	if r := m.Ratio("martha", "marhta"); r < 0.9 {
		t.Errorf("martha/marhta = %v, want >= 0.9", r)
	}
	if r := m.Ratio("abc", "xyz"); r > 0.5 {
		t.Errorf("disjoint = %v, want <= 0.5", r)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricLevenshtein, false},
		{"levenshtein", MetricLevenshtein, false},
		{"jaro-winkler", MetricJaroWinkler, false},
		{"cosine", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetric(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMetric(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if MetricJaroWinkler.String() != "jaro-winkler" {
		t.Errorf("String() = %q", MetricJaroWinkler.String())
	}
}
