// Package pgsource loads the static knowledge base from PostgreSQL.
//
// The schema mirrors the tables the dataset-building scripts populate:
//
//   - augment_name_map(name_ko, name_en): displayed title → canonical name
//   - augment_stats(name_en, tier, win_rate, pick_rate, tips): global statistics
//   - champions(name, champion_id, tier, win_rate, score): champion tiers
//   - augments(champion_name, augment_type, augment_name, augment_tier):
//     per-champion augment ratings
//
// The tables are read once at startup; there is no hot reload.
//
// Usage:
//
//	src, err := pgsource.New(ctx, dsn)
//	if err != nil { … }
//	defer src.Close()
//	doc, err := src.Load(ctx)
package pgsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftsight/riftsight/internal/canon"
)

const (
	queryAugmentNames = `SELECT name_ko, name_en FROM augment_name_map ORDER BY id`
	queryAugmentStats = `SELECT name_en, COALESCE(tier, ''), COALESCE(win_rate, ''), COALESCE(pick_rate, ''), COALESCE(tips, '{}') FROM augment_stats`
	queryChampions    = `SELECT name, COALESCE(champion_id, 0), COALESCE(tier, ''), COALESCE(win_rate, ''), COALESCE(score, '') FROM champions ORDER BY name`
	queryRatings      = `SELECT champion_name, augment_name, COALESCE(augment_type, ''), COALESCE(augment_tier, '') FROM augments ORDER BY id`
)

const ddl = `
CREATE TABLE IF NOT EXISTS augment_name_map (
    id      BIGSERIAL PRIMARY KEY,
    name_ko TEXT NOT NULL UNIQUE,
    name_en TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS augment_stats (
    name_en   TEXT PRIMARY KEY,
    tier      TEXT,
    win_rate  TEXT,
    pick_rate TEXT,
    tips      TEXT[]
);

CREATE TABLE IF NOT EXISTS champions (
    name        TEXT PRIMARY KEY,
    champion_id INTEGER,
    tier        TEXT,
    win_rate    TEXT,
    score       TEXT
);

CREATE TABLE IF NOT EXISTS augments (
    id            BIGSERIAL PRIMARY KEY,
    champion_name TEXT NOT NULL,
    augment_type  TEXT,
    augment_name  TEXT NOT NULL,
    augment_tier  TEXT
);
`

// Source implements [canon.Source] on top of a [pgxpool.Pool].
type Source struct {
	pool *pgxpool.Pool
}

var _ canon.Source = (*Source)(nil)

// New connects to the database at dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*Source, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsource: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgsource: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgsource: ping: %w", err)
	}
	return &Source{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Source) Close() {
	s.pool.Close()
}

// Migrate creates the knowledge-base tables when they do not exist.
func (s *Source) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgsource: migrate: %w", err)
	}
	return nil
}

// Load implements [canon.Source].
func (s *Source) Load(ctx context.Context) (*canon.Document, error) {
	names, err := s.augmentNames(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.augmentStats(ctx)
	if err != nil {
		return nil, err
	}
	champs, err := s.champions(ctx)
	if err != nil {
		return nil, err
	}
	ratings, err := s.ratings(ctx)
	if err != nil {
		return nil, err
	}
	doc := buildDocument(names, stats, champs)
	doc.ChampionAugments = ratings
	return doc, nil
}

type augmentName struct {
	ko, en string
}

type championRow struct {
	name                 string
	id                   int
	tier, winRate, score string
}

func (s *Source) augmentNames(ctx context.Context) ([]augmentName, error) {
	rows, err := s.pool.Query(ctx, queryAugmentNames)
	if err != nil {
		return nil, fmt.Errorf("pgsource: query augment names: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (augmentName, error) {
		var a augmentName
		err := row.Scan(&a.ko, &a.en)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgsource: scan augment names: %w", err)
	}
	return out, nil
}

func (s *Source) augmentStats(ctx context.Context) ([]canon.StatDoc, error) {
	rows, err := s.pool.Query(ctx, queryAugmentStats)
	if err != nil {
		return nil, fmt.Errorf("pgsource: query augment stats: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (canon.StatDoc, error) {
		var st canon.StatDoc
		err := row.Scan(&st.Name, &st.Tier, &st.WinRate, &st.PickRate, &st.Tips)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgsource: scan augment stats: %w", err)
	}
	return out, nil
}

func (s *Source) champions(ctx context.Context) ([]championRow, error) {
	rows, err := s.pool.Query(ctx, queryChampions)
	if err != nil {
		return nil, fmt.Errorf("pgsource: query champions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (championRow, error) {
		var c championRow
		err := row.Scan(&c.name, &c.id, &c.tier, &c.winRate, &c.score)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgsource: scan champions: %w", err)
	}
	return out, nil
}

func (s *Source) ratings(ctx context.Context) ([]canon.ChampionAugmentDoc, error) {
	rows, err := s.pool.Query(ctx, queryRatings)
	if err != nil {
		return nil, fmt.Errorf("pgsource: query champion augments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (canon.ChampionAugmentDoc, error) {
		var r canon.ChampionAugmentDoc
		err := row.Scan(&r.Champion, &r.Augment, &r.Type, &r.Tier)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgsource: scan champion augments: %w", err)
	}
	return out, nil
}

// buildDocument shapes scanned rows into a [canon.Document].
func buildDocument(names []augmentName, stats []canon.StatDoc, champs []championRow) *canon.Document {
	doc := &canon.Document{Stats: stats}
	for _, n := range names {
		if n.ko == "" || n.en == "" {
			continue
		}
		doc.Augments = append(doc.Augments, canon.EntryDoc{
			Name:     n.ko,
			Key:      n.en,
			Metadata: map[string]string{"name_en": n.en},
		})
	}
	for _, c := range champs {
		meta := map[string]string{}
		if c.tier != "" {
			meta["tier"] = c.tier
		}
		if c.winRate != "" {
			meta["win_rate"] = c.winRate
		}
		if c.score != "" {
			meta["score"] = c.score
		}
		doc.Champions = append(doc.Champions, canon.EntryDoc{Name: c.name, ID: c.id, Metadata: meta})
	}
	return doc
}
