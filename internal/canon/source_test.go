package canon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeMapping(t *testing.T) {
	in := strings.Join([]string{
		"핵심 룬 요술사 : Arcane Core",
		"지옥의 계약=Infernal Contract",
		"# no separator here",
		" : missing name",
		"",
	}, "\n")
	doc, err := DecodeMapping(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeMapping: %v", err)
	}
	if len(doc.Augments) != 2 {
		t.Fatalf("augments = %d, want 2", len(doc.Augments))
	}
	if doc.Augments[1].Name != "지옥의 계약" || doc.Augments[1].Key != "Infernal Contract" {
		t.Errorf("augment[1] = %+v", doc.Augments[1])
	}
}

func TestDecodeDocument(t *testing.T) {
	in := `
augments:
  - name: "지옥의 계약"
    key: "Infernal Contract"
    aliases: ["Infernal Contract"]
champions:
  - name: "Kai'Sa"
    id: 145
stats:
  - name: "Infernal Contract"
    tier: "A"
    tips: ["one", "two", "three"]
`
	doc, err := DecodeDocument(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	kb, err := NewKnowledgeBase(doc)
	if err != nil {
		t.Fatalf("NewKnowledgeBase: %v", err)
	}

	e, _, ok := kb.Augments.Lookup("Infernal Contract")
	if !ok {
		t.Fatal("alias lookup missed")
	}
	if e.Kind != KindAugment {
		t.Errorf("Kind = %q", e.Kind)
	}
	if e.Metadata["tier"] != "A" || e.Metadata["tip.1"] != "two" {
		t.Errorf("stats not merged: %v", e.Metadata)
	}
	if _, ok := e.Metadata["tip.2"]; ok {
		t.Error("more than two tips merged")
	}

	c, _, ok := kb.Champions.Lookup("kaisa")
	if !ok || c.Metadata["id"] != "145" {
		t.Errorf("champion lookup = (%+v, %v)", c, ok)
	}
	if name, ok := kb.ChampionName(145); !ok || name != "Kai'Sa" {
		t.Errorf("ChampionName = %q, %v", name, ok)
	}
}

func TestDecodeDocumentUnknownField(t *testing.T) {
	if _, err := DecodeDocument(strings.NewReader("augmnets: []\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDecodeDocumentEmpty(t *testing.T) {
	doc, err := DecodeDocument(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	if len(doc.Augments) != 0 {
		t.Error("expected empty document")
	}
}

func TestFileSourceMergesFiles(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "map.txt")
	yml := filepath.Join(dir, "kb.yaml")
	if err := os.WriteFile(txt, []byte("지옥의 계약 : Infernal Contract\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yml, []byte("champions:\n  - name: Ahri\n    id: 103\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := FileSource{Paths: []string{txt, yml}}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Augments) != 1 || len(doc.Champions) != 1 {
		t.Errorf("doc = %+v", doc)
	}

	if _, err := (FileSource{Paths: []string{filepath.Join(dir, "missing.yaml")}}).Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestKnowledgeBaseEnrich(t *testing.T) {
	in := `
augments:
  - name: "지옥의 계약"
    key: "Infernal Contract"
    metadata: {name_en: "Infernal Contract"}
  - name: "마법사의 길"
    key: "Wizardly Path"
    metadata: {name_en: "Wizardly Path"}
champion_augments:
  - champion: "Kai'Sa"
    augment: "Infernal Contract"
    type: "silver"
    tier: "S"
  - champion: "Kog'Maw"
    augment: "마법사의 길"
    tier: "B"
  - champion: "Kai'Sa"
    augment: "Untiered"
`
	doc, err := DecodeDocument(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	kb, err := NewKnowledgeBase(doc)
	if err != nil {
		t.Fatalf("NewKnowledgeBase: %v", err)
	}

	cz := NewCanonicalizer(kb.Augments)
	set := cz.ResolveCandidateSet([]RawReading{
		{RegionID: 0, Text: "지옥의 계약"},
		{RegionID: 1, Text: "마법사의 길"},
	}, 2)
	if set.Empty() {
		t.Fatal("candidate set rejected")
	}

	tests := []struct {
		champion string
		want     []string
	}{
		{"Kai'Sa", []string{"S", ""}},
		{"kaisa", []string{"S", ""}},
		{"KOG'MAW", []string{"", "B"}},
		{"Ahri", []string{"", ""}},
		{"", []string{"", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.champion, func(t *testing.T) {
			got := kb.Enrich(set, tt.champion)
			for i, want := range tt.want {
				if tier := got[i].Metadata[MetaChampionTier]; tier != want {
					t.Errorf("item %d tier_champ = %q, want %q", i, tier, want)
				}
			}
		})
	}

	kb.Enrich(set, "Kai'Sa")
	for i, r := range set {
		if _, ok := r.Metadata[MetaChampionTier]; ok {
			t.Errorf("Enrich modified the input set at %d", i)
		}
	}
	e, _, _ := kb.Augments.Lookup("지옥의 계약")
	if _, ok := e.Metadata[MetaChampionTier]; ok {
		t.Error("Enrich leaked into index metadata")
	}

	if _, ok := kb.ChampionTier("Kai'Sa", "Untiered"); ok {
		t.Error("rating without a tier was kept")
	}
}
