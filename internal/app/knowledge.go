package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/riftsight/riftsight/internal/canon"
	"github.com/riftsight/riftsight/internal/canon/pgsource"
)

// errNoKnowledgeSources is returned by [App.ReloadKnowledge] when the
// knowledge base was injected rather than loaded.
var errNoKnowledgeSources = errors.New("app: no knowledge sources configured")

// liveKnowledge resolves champion data against whichever knowledge base is
// current, so lifecycle identity recovery and tier enrichment follow reloads.
type liveKnowledge struct{ a *App }

func (k liveKnowledge) ChampionName(id int) (string, bool) {
	return k.a.KnowledgeBase().ChampionName(id)
}

func (k liveKnowledge) Enrich(set canon.CandidateSet, champion string) canon.CandidateSet {
	return k.a.KnowledgeBase().Enrich(set, champion)
}

func (a *App) initKnowledge(ctx context.Context) error {
	if kb := a.injectedKB; kb != nil {
		a.install(kb)
		return nil
	}

	if files := a.cfg.Knowledge.Files; len(files) > 0 {
		a.sources = append(a.sources, canon.FileSource{Paths: files})
	}
	if dsn := a.cfg.Knowledge.PostgresDSN; dsn != "" {
		src, err := pgsource.New(ctx, dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			src.Close()
			return nil
		})
		if a.cfg.Knowledge.Migrate {
			if err := src.Migrate(ctx); err != nil {
				return err
			}
		}
		a.sources = append(a.sources, src)
	}

	metric, err := canon.ParseMetric(a.cfg.Pipeline.Similarity)
	if err != nil {
		return err
	}
	a.indexOpts = []canon.Option{
		canon.WithCutoff(a.cfg.Pipeline.FuzzyCutoff),
		canon.WithMetric(metric),
		canon.WithCacheSize(a.cfg.Pipeline.CacheSize),
	}
	if a.cfg.Pipeline.Phonetic {
		a.indexOpts = append(a.indexOpts, canon.WithChain(append(canon.DefaultChain(), canon.PhoneticStrategy{})...))
	}

	kb, err := a.loadKnowledge(ctx)
	if err != nil {
		return err
	}
	if kb.Augments.Len() == 0 {
		slog.Warn("knowledge base has no augment entries; every reading will pass unresolved")
	}
	a.install(kb)
	return nil
}

func (a *App) loadKnowledge(ctx context.Context) (*canon.KnowledgeBase, error) {
	doc := &canon.Document{}
	for _, src := range a.sources {
		d, err := src.Load(ctx)
		if err != nil {
			return nil, err
		}
		doc.Merge(d)
	}
	return canon.NewKnowledgeBase(doc, a.indexOpts...)
}

// install makes kb current. The augment index is swapped through the
// holder the canonicalizer and the readiness check read from.
func (a *App) install(kb *canon.KnowledgeBase) {
	a.kb.Store(kb)
	if a.augments == nil {
		a.augments = canon.NewHolder(kb.Augments)
	} else {
		a.augments.Swap(kb.Augments)
	}
	slog.Info("knowledge base loaded",
		"augments", kb.Augments.Len(),
		"champions", kb.Champions.Len(),
		"cutoff", kb.Augments.Cutoff(),
		"similarity", kb.Augments.Metric(),
	)
}

// ReloadKnowledge re-reads every configured knowledge source and swaps the
// result in. A reload that fails, or that would replace a populated augment
// index with an empty one, keeps the current knowledge base.
func (a *App) ReloadKnowledge(ctx context.Context) error {
	if len(a.sources) == 0 {
		return errNoKnowledgeSources
	}
	kb, err := a.loadKnowledge(ctx)
	if err != nil {
		return fmt.Errorf("app: reload knowledge: %w", err)
	}
	if kb.Augments.Len() == 0 && a.augments.Len() > 0 {
		return errors.New("app: reload knowledge: new knowledge base has no augment entries")
	}
	a.install(kb)
	return nil
}

// reloadOnSignal calls ReloadKnowledge for every signal in a.reloadSignals
// until ctx is done.
func (a *App) reloadOnSignal(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, a.reloadSignals...)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-sig:
			if err := a.ReloadKnowledge(ctx); err != nil {
				slog.Warn("knowledge reload failed; keeping current knowledge base", "signal", s.String(), "err", err)
			}
		}
	}
}
