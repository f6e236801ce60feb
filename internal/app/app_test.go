package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/riftsight/riftsight/internal/app"
	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/internal/config"
	"github.com/riftsight/riftsight/internal/publish"
	"github.com/riftsight/riftsight/internal/state"
	capmock "github.com/riftsight/riftsight/pkg/capture/mock"
	"github.com/riftsight/riftsight/pkg/matchclient"
	mcmock "github.com/riftsight/riftsight/pkg/matchclient/mock"
	recmock "github.com/riftsight/riftsight/pkg/recognition/mock"
)

var titles = []string{"Alpha Strike", "Blade Waltz", "Cosmic Drive"}

// testConfig returns a config with one layout of three regions of widths
// 50, 60 and 70 inside a 300x60 frame.
func testConfig() *config.Config {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			CaptureInterval: 5 * time.Millisecond,
			PostPublishHold: 10 * time.Millisecond,
			ErrorBackoff:    5 * time.Millisecond,
			Layouts: []config.LayoutConfig{{
				MinWidth: 0,
				Regions:  [][4]int{{0, 0, 50, 20}, {100, 0, 160, 20}, {200, 0, 270, 20}},
			}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testKnowledgeBase(t *testing.T) *canon.KnowledgeBase {
	t.Helper()
	doc := &canon.Document{}
	for _, n := range titles {
		doc.Augments = append(doc.Augments, canon.EntryDoc{Name: n})
	}
	kb, err := canon.NewKnowledgeBase(doc)
	if err != nil {
		t.Fatalf("NewKnowledgeBase: %v", err)
	}
	return kb
}

func testProviders() *app.Providers {
	frame := image.NewRGBA(image.Rect(0, 0, 300, 60))
	for i := range frame.Pix {
		frame.Pix[i] = 0xff
	}
	frame.Set(10, 10, color.Black)

	eng := &recmock.Engine{}
	eng.SetByWidth(map[int]string{50: titles[0], 60: titles[1], 70: titles[2]})
	return &app.Providers{
		Capturer: &capmock.Capturer{Shots: []capmock.Shot{{Image: frame}}},
		Engine:   eng,
	}
}

// recorder is a publish.Publisher that keeps every payload.
type recorder struct {
	mu       sync.Mutex
	payloads []publish.Payload
	notify   chan struct{}
}

func newRecorder() *recorder { return &recorder{notify: make(chan struct{}, 16)} }

func (r *recorder) Publish(_ context.Context, p publish.Payload) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

func (r *recorder) all() []publish.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publish.Payload(nil), r.payloads...)
}

func TestNew_RequiresCapturerAndEngine(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("expected error for missing providers")
	}
}

func TestNew_LoadsKnowledgeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "augments.txt")
	if err := os.WriteFile(path, []byte("지옥의 계약 : Infernal Contract\n핵심룬=Keystone\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Knowledge.Files = []string{path}

	a, err := app.New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if got := a.KnowledgeBase().Augments.Len(); got != 2 {
		t.Errorf("augments = %d, want 2", got)
	}
}

func TestNew_MissingKnowledgeFileFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Knowledge.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	_, err := app.New(context.Background(), cfg, testProviders())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestHandler_Endpoints(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/state"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
		})
	}
}

func TestReadyz_OptionalMatchClient(t *testing.T) {
	t.Parallel()

	p := testProviders()
	p.MatchClient = &mcmock.Client{Steps: []mcmock.Step{{Err: matchclient.ErrUnavailable}}}
	a, err := app.New(context.Background(), testConfig(), p,
		app.WithKnowledgeBase(testKnowledgeBase(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with unreachable game client", rec.Code)
	}
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["match_client"] == "ok" {
		t.Errorf("match_client = %q, want degraded", body.Checks["match_client"])
	}
}

func TestStateEndpoint_HidesStaleResults(t *testing.T) {
	t.Parallel()

	store := state.New()
	cfg := testConfig()
	cfg.Publish.StaleAfter = time.Millisecond
	a, err := app.New(context.Background(), cfg, testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)), app.WithStore(store))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	store.Publish(canon.CandidateSet{{RegionID: 0, Key: titles[0], DisplayText: titles[0]}})
	time.Sleep(5 * time.Millisecond)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/state", nil))

	var body struct {
		Active  bool               `json:"active"`
		Results canon.CandidateSet `json:"results"`
		Stale   bool               `json:"stale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Stale || body.Active || len(body.Results) != 0 {
		t.Errorf("body = %+v, want stale with no results", body)
	}
	if !store.Snapshot().Active {
		t.Error("serving /state must not modify the store")
	}
}

func TestRun_PublishesStableSet(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)),
		app.WithSinks(publish.Sink{Name: "recorder", Publisher: rec}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-rec.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no publication within 5s")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	first := rec.all()[0]
	if !first.Active || len(first.Items) != 3 {
		t.Fatalf("first payload = %+v, want active with 3 items", first)
	}
	for i, it := range first.Items {
		if want := canon.Normalize(titles[i]); it.Key != want {
			t.Errorf("item %d key = %q, want %q", i, it.Key, want)
		}
	}
	if snap := a.Store().Snapshot(); !snap.Active || len(snap.Results) != 3 {
		t.Errorf("store snapshot = %+v, want published results", snap)
	}
}

func TestRun_ExtraWorkerErrorStopsApp(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)),
		app.WithWorker(func(context.Context) error { return boom }),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run() = %v, want %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after worker failure")
	}
}

func TestShutdown_PublishesFinalClear(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	store := state.New()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)),
		app.WithStore(store),
		app.WithSinks(publish.Sink{Name: "recorder", Publisher: rec}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	store.Publish(canon.CandidateSet{{RegionID: 0, Key: titles[0], DisplayText: titles[0]}})

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() = %v", err)
	}

	got := rec.all()
	if len(got) != 1 || got[0].Active {
		t.Fatalf("payloads = %+v, want one inactive payload", got)
	}
	if store.Snapshot().Active {
		t.Error("store still active after shutdown")
	}
}

func TestNew_PhoneticChain(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb.yaml")
	doc := "augments:\n  - name: \"Infernal Contract\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Knowledge.Files = []string{path}
	cfg.Pipeline.FuzzyCutoff = 0.95
	cfg.Pipeline.Phonetic = true

	a, err := app.New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	m, ok := a.KnowledgeBase().Augments.Match("Infernel Kontract")
	if !ok || m.Strategy != "phonetic" {
		t.Errorf("Match = (%+v, %v), want phonetic hit", m, ok)
	}
}

func TestShutdown_WritesJournal(t *testing.T) {
	t.Parallel()

	store := state.New()
	cfg := testConfig()
	cfg.Publish.JournalPath = filepath.Join(t.TempDir(), "session.jsonl")
	a, err := app.New(context.Background(), cfg, testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)), app.WithStore(store))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	store.Publish(canon.CandidateSet{{RegionID: 0, Key: titles[0], DisplayText: titles[0]}})
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}

	data, err := os.ReadFile(cfg.Publish.JournalPath)
	if err != nil {
		t.Fatalf("journal not written: %v", err)
	}
	var p publish.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode journal line: %v", err)
	}
	if p.Active {
		t.Errorf("journal payload = %+v, want inactive", p)
	}
}

func TestRun_PublishesChampionTier(t *testing.T) {
	t.Parallel()

	doc := &canon.Document{ChampionAugments: []canon.ChampionAugmentDoc{
		{Champion: "Kai'Sa", Augment: titles[1], Tier: "S"},
	}}
	for _, n := range titles {
		doc.Augments = append(doc.Augments, canon.EntryDoc{Name: n})
	}
	kb, err := canon.NewKnowledgeBase(doc)
	if err != nil {
		t.Fatalf("NewKnowledgeBase: %v", err)
	}
	store := state.New()
	store.SetIdentity("Kai'Sa")

	rec := newRecorder()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(kb),
		app.WithStore(store),
		app.WithSinks(publish.Sink{Name: "recorder", Publisher: rec}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	select {
	case <-rec.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("no publication within 5s")
	}
	cancel()
	<-done

	first := rec.all()[0]
	if first.Identity != "Kai'Sa" {
		t.Errorf("identity = %q, want Kai'Sa", first.Identity)
	}
	for i, want := range []string{"", "S", ""} {
		if got := first.Items[i].Metadata[canon.MetaChampionTier]; got != want {
			t.Errorf("item %d tier_champ = %q, want %q", i, got, want)
		}
	}
}

func TestReloadKnowledge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "augments.txt")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("지옥의 계약 : Infernal Contract\n")
	cfg := testConfig()
	cfg.Knowledge.Files = []string{path}

	a, err := app.New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	before := a.KnowledgeBase()

	write("지옥의 계약 : Infernal Contract\n핵심룬=Keystone\n")
	if err := a.ReloadKnowledge(context.Background()); err != nil {
		t.Fatalf("ReloadKnowledge: %v", err)
	}
	if got := a.KnowledgeBase().Augments.Len(); got != 2 {
		t.Errorf("augments after reload = %d, want 2", got)
	}
	if before.Augments.Len() != 1 {
		t.Error("reload mutated the previous knowledge base")
	}

	write("")
	if err := a.ReloadKnowledge(context.Background()); err == nil {
		t.Error("reload to an empty vocabulary succeeded")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := a.ReloadKnowledge(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reload of missing file = %v, want os.ErrNotExist", err)
	}
	if got := a.KnowledgeBase().Augments.Len(); got != 2 {
		t.Errorf("failed reloads replaced the knowledge base: %d entries", got)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", rec.Code)
	}

	injected, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithKnowledgeBase(testKnowledgeBase(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if err := injected.ReloadKnowledge(context.Background()); err == nil {
		t.Error("reload of an injected knowledge base succeeded")
	}
}
