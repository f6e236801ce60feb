package canon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary kinds.
const (
	KindAugment  = "augment"
	KindChampion = "champion"
)

// Document is the on-disk form of the static knowledge base.
//
// Example:
//
//	augments:
//	  - name: "지옥의 계약"
//	    key: "Infernal Contract"
//	    metadata: {name_en: "Infernal Contract"}
//	champions:
//	  - name: "Kai'Sa"
//	    id: 145
//	    metadata: {tier: "S"}
//	stats:
//	  - name: "Infernal Contract"
//	    tier: "A"
//	    win_rate: "52.1%"
//	    tips: ["Pair with sustain."]
//	champion_augments:
//	  - champion: "Kai'Sa"
//	    augment: "Infernal Contract"
//	    tier: "S"
type Document struct {
	Augments         []EntryDoc           `yaml:"augments" json:"augments"`
	Champions        []EntryDoc           `yaml:"champions" json:"champions"`
	Stats            []StatDoc            `yaml:"stats" json:"stats"`
	ChampionAugments []ChampionAugmentDoc `yaml:"champion_augments" json:"champion_augments"`
}

// EntryDoc is one vocabulary item in a [Document].
type EntryDoc struct {
	// Name is the surface form shown in game (e.g. the Korean augment title).
	Name string `yaml:"name" json:"name"`

	// Key is the canonical name the entry joins on. Defaults to Name.
	Key string `yaml:"key" json:"key"`

	// Aliases are additional surface forms that resolve to the same key.
	Aliases []string `yaml:"aliases" json:"aliases"`

	// ID is the numeric id used by the game client (champions only).
	ID int `yaml:"id" json:"id"`

	Metadata map[string]string `yaml:"metadata" json:"metadata"`
}

// StatDoc carries global statistics merged into the augment entry whose
// canonical key matches Normalize(Name).
type StatDoc struct {
	Name     string   `yaml:"name" json:"name"`
	Tier     string   `yaml:"tier" json:"tier"`
	WinRate  string   `yaml:"win_rate" json:"win_rate"`
	PickRate string   `yaml:"pick_rate" json:"pick_rate"`
	Tips     []string `yaml:"tips" json:"tips"`
}

// ChampionAugmentDoc rates one augment for one champion. Both names are
// matched through [Normalize], so "Kog'Maw" and "kogmaw" are the same
// champion. Augment is the canonical (English) name or the in-game title.
type ChampionAugmentDoc struct {
	Champion string `yaml:"champion" json:"champion"`
	Augment  string `yaml:"augment" json:"augment"`
	Type     string `yaml:"type" json:"type"`
	Tier     string `yaml:"tier" json:"tier"`
}

// MetaChampionTier is the metadata key [KnowledgeBase.Enrich] fills with the
// augment's tier for the current champion.
const MetaChampionTier = "tier_champ"

// maxTips bounds the tips copied into entry metadata.
const maxTips = 2

// Merge appends other's contents to d.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	d.Augments = append(d.Augments, other.Augments...)
	d.Champions = append(d.Champions, other.Champions...)
	d.Stats = append(d.Stats, other.Stats...)
	d.ChampionAugments = append(d.ChampionAugments, other.ChampionAugments...)
}

// Source loads a knowledge-base [Document] once at startup.
type Source interface {
	Load(ctx context.Context) (*Document, error)
}

// FileSource reads one or more knowledge-base files. YAML and JSON documents
// are decoded with yaml.v3; ".txt" files use the legacy mapping format, one
// "표시명 : English Name" or "표시명=English Name" pair per line.
type FileSource struct {
	Paths []string
}

var _ Source = FileSource{}

// Load implements [Source].
func (s FileSource) Load(ctx context.Context) (*Document, error) {
	doc := &Document{}
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		doc.Merge(d)
	}
	return doc, nil
}

// LoadFile reads a single knowledge-base file, choosing the format from the
// file extension.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("canon: open %q: %w", path, err)
	}
	defer f.Close()

	var doc *Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		doc, err = DecodeMapping(f)
	default:
		doc, err = DecodeDocument(f)
	}
	if err != nil {
		return nil, fmt.Errorf("canon: parse %q: %w", path, err)
	}
	return doc, nil
}

// DecodeDocument decodes a YAML or JSON [Document] from r. Unknown keys are
// rejected to catch typos.
func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, fmt.Errorf("canon: decode document: %w", err)
	}
	return &doc, nil
}

// DecodeMapping parses the legacy augment mapping text format. Lines without
// a separator are ignored.
func DecodeMapping(r io.Reader) (*Document, error) {
	doc := &Document{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		var name, en string
		switch {
		case strings.Contains(line, " : "):
			name, en, _ = strings.Cut(line, " : ")
		case strings.Contains(line, "="):
			name, en, _ = strings.Cut(line, "=")
		default:
			continue
		}
		name, en = strings.TrimSpace(name), strings.TrimSpace(en)
		if name == "" || en == "" {
			continue
		}
		doc.Augments = append(doc.Augments, EntryDoc{
			Name:     name,
			Key:      en,
			Metadata: map[string]string{"name_en": en},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("canon: read mapping: %w", err)
	}
	return doc, nil
}

// KnowledgeBase bundles the indexes built from one [Document].
type KnowledgeBase struct {
	Augments  *Index
	Champions *Index

	championNames map[int]string

	// championTiers maps Normalize(champion) to Normalize(augment) to tier.
	championTiers map[string]map[string]string
}

// NewKnowledgeBase builds augment and champion indexes from doc. opts apply
// to both indexes.
func NewKnowledgeBase(doc *Document, opts ...Option) (*KnowledgeBase, error) {
	if doc == nil {
		doc = &Document{}
	}

	stats := make(map[string]StatDoc, len(doc.Stats))
	for _, s := range doc.Stats {
		if k := Normalize(s.Name); k != "" {
			stats[k] = s
		}
	}

	augments, err := Build(pairsFrom(doc.Augments, stats), append(opts, WithKind(KindAugment))...)
	if err != nil {
		return nil, fmt.Errorf("canon: build augment index: %w", err)
	}
	champions, err := Build(pairsFrom(doc.Champions, nil), append(opts, WithKind(KindChampion))...)
	if err != nil {
		return nil, fmt.Errorf("canon: build champion index: %w", err)
	}

	kb := &KnowledgeBase{
		Augments:      augments,
		Champions:     champions,
		championNames: make(map[int]string, len(doc.Champions)),
		championTiers: championTiers(doc.ChampionAugments),
	}
	for _, c := range doc.Champions {
		if c.ID > 0 && c.Name != "" {
			if _, taken := kb.championNames[c.ID]; !taken {
				kb.championNames[c.ID] = c.Name
			}
		}
	}
	return kb, nil
}

// ChampionName returns the display name of the champion with the given game
// client id.
func (kb *KnowledgeBase) ChampionName(id int) (string, bool) {
	name, ok := kb.championNames[id]
	return name, ok
}

// ChampionTier returns the tier of an augment for champion. names are tried
// in order, so a caller can pass both the canonical and the displayed name.
func (kb *KnowledgeBase) ChampionTier(champion string, names ...string) (string, bool) {
	tiers := kb.championTiers[Normalize(champion)]
	if tiers == nil {
		return "", false
	}
	for _, n := range names {
		if t, ok := tiers[Normalize(n)]; ok {
			return t, true
		}
	}
	return "", false
}

// Enrich returns set with [MetaChampionTier] filled for every reading rated
// for champion. Matching readings get a copied metadata map; index entries
// are never modified. With no champion or no ratings set is returned as is.
func (kb *KnowledgeBase) Enrich(set CandidateSet, champion string) CandidateSet {
	if len(set) == 0 || champion == "" || kb.championTiers[Normalize(champion)] == nil {
		return set
	}
	out := make(CandidateSet, len(set))
	for i, r := range set {
		out[i] = r
		tier, ok := kb.ChampionTier(champion, r.Metadata["name_en"], r.Key, r.DisplayText)
		if !ok {
			continue
		}
		meta := make(map[string]string, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta[MetaChampionTier] = tier
		out[i].Metadata = meta
	}
	return out
}

func championTiers(docs []ChampionAugmentDoc) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, d := range docs {
		champ, aug := Normalize(d.Champion), Normalize(d.Augment)
		if champ == "" || aug == "" || d.Tier == "" {
			continue
		}
		if out[champ] == nil {
			out[champ] = make(map[string]string)
		}
		out[champ][aug] = d.Tier
	}
	return out
}

func pairsFrom(docs []EntryDoc, stats map[string]StatDoc) []Pair {
	pairs := make([]Pair, 0, len(docs))
	for _, d := range docs {
		key := d.Key
		if key == "" {
			key = d.Name
		}
		meta := make(map[string]string, len(d.Metadata)+4)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		if d.ID > 0 {
			meta["id"] = strconv.Itoa(d.ID)
		}
		if s, ok := stats[Normalize(key)]; ok {
			mergeStats(meta, s)
		}
		pairs = append(pairs, Pair{DisplayName: d.Name, CanonicalKey: key, Metadata: meta})
		for _, a := range d.Aliases {
			pairs = append(pairs, Pair{DisplayName: a, CanonicalKey: key})
		}
	}
	return pairs
}

func mergeStats(meta map[string]string, s StatDoc) {
	set := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	set("tier", s.Tier)
	set("win_rate", s.WinRate)
	set("pick_rate", s.PickRate)
	for i, tip := range s.Tips {
		if i >= maxTips {
			break
		}
		set("tip."+strconv.Itoa(i), tip)
	}
}
