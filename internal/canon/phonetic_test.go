package canon

import "testing"

func phoneticIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Build([]Pair{
		{DisplayName: "Infernal Contract", CanonicalKey: "Infernal Contract"},
		{DisplayName: "Blade Waltz", CanonicalKey: "Blade Waltz"},
		{DisplayName: "지옥의 계약", CanonicalKey: "Infernal Contract"},
	}, WithCutoff(0.95), WithChain(append(DefaultChain(), PhoneticStrategy{})...))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func TestPhoneticStrategy(t *testing.T) {
	ix := phoneticIndex(t)

	tests := []struct {
		name     string
		raw      string
		wantKey  string
		wantHit  bool
		strategy string
	}{
		{"exact still wins", "Blade Waltz", "bladewaltz", true, "exact"},
		{"sound-alike below fuzzy cutoff", "Infernel Kontract", "infernalcontract", true, "phonetic"},
		{"unrelated", "Cosmic Drive", "", false, ""},
		{"hangul yields no codes", "지옥의 게약", "", false, ""},
		{"empty", "", "", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, ok := ix.Match(tc.raw)
			if ok != tc.wantHit {
				t.Fatalf("Match(%q) ok = %v, want %v (%+v)", tc.raw, ok, tc.wantHit, m)
			}
			if !ok {
				return
			}
			if m.Key != tc.wantKey {
				t.Errorf("key = %q, want %q", m.Key, tc.wantKey)
			}
			if m.Strategy != tc.strategy {
				t.Errorf("strategy = %q, want %q", m.Strategy, tc.strategy)
			}
		})
	}
}

func TestPhoneticStrategyThreshold(t *testing.T) {
	ix, err := Build([]Pair{{DisplayName: "Infernal Contract"}},
		WithCutoff(0.99), WithChain(PhoneticStrategy{Threshold: 0.999}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m, ok := ix.Match("Infernel Kontract"); ok {
		t.Errorf("strict threshold matched %+v", m)
	}
}
