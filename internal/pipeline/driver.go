package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/aggregate"
	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/catalog"
	"github.com/guarzo/pkmpricewatch/internal/collector"
	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/match"
	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/species"
	"github.com/guarzo/pkmpricewatch/internal/window"
)

// Catalog build strategies.
const (
	StrategyTCGdex = "tcgdex" // dual-language structured API walk
	StrategySplit  = "split"  // English card API + Japanese HTML index
)

// Config is everything one run needs. Zero values select the documented
// defaults.
type Config struct {
	DataDir  string
	CacheDir string

	SkipCatalog             bool
	CatalogStrategy         string
	EnrichEnglishPokemonKey bool
	StrictCatalog           bool
	MinCatalogCards         int
	MinEnglishCards         int

	DaysWindow          int
	PagesPerQuery       int
	ConfidenceThreshold float64

	Queries []collector.Query

	// Source endpoints, override-able for tests.
	TCGdexBaseURL      string
	CardAPIBaseURL     string
	CardAPIKey         string
	JPIndexBaseURL     string
	SpeciesBaseURL     string
	MarketplaceBaseURL string
}

// Driver runs the pipeline phases in order.
type Driver struct {
	cfg   Config
	store *ArtifactStore
	http  *fetch.Client
	log   *log.Logger
}

func New(cfg Config, logger *log.Logger) *Driver {
	if cfg.CatalogStrategy == "" {
		cfg.CatalogStrategy = StrategyTCGdex
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(defaultString(cfg.DataDir, DefaultDataDir), "cache")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		cfg:   cfg,
		store: NewArtifactStore(cfg.DataDir),
		http:  fetch.New(0),
		log:   logger,
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Run executes the phases: catalog build-or-load, validate, persist,
// sales load+prune, collect, sales persist, aggregate, prices and meta
// persist.
func (d *Driver) Run(ctx context.Context) error {
	start := time.Now()

	cards, err := d.catalogPhase(ctx)
	if err != nil {
		return err
	}
	d.log.Printf("catalog ready: %d cards (%.0fs)", len(cards), time.Since(start).Seconds())

	sales, err := d.salesPhase(ctx, cards)
	if err != nil {
		return err
	}

	byCard := aggregate.Build(sales)
	if err := d.store.SavePrices(byCard); err != nil {
		return err
	}
	if err := d.store.SaveMeta(Meta{
		UpdatedAt:  time.Now().UTC().Truncate(time.Second),
		Cards:      len(cards),
		Sales:      len(sales),
		DurationMs: time.Since(start).Milliseconds(),
	}); err != nil {
		return err
	}
	d.log.Printf("run complete: %d cards, %d sales, %d priced cards in %s",
		len(cards), len(sales), len(byCard), time.Since(start).Round(time.Second))
	return nil
}

// catalogPhase yields the catalog for this run: reused, or built,
// validated, and persisted.
func (d *Driver) catalogPhase(ctx context.Context) ([]model.Card, error) {
	if d.cfg.SkipCatalog {
		cards, err := d.store.LoadCatalog()
		if err != nil {
			return nil, err
		}
		if len(cards) > 0 {
			d.log.Printf("catalog: reusing %d persisted cards", len(cards))
			return cards, nil
		}
		d.log.Printf("catalog: skip requested but no persisted catalog, building")
	}

	cards, err := d.buildCatalog(ctx)
	if err != nil {
		return nil, err
	}

	if verr := catalog.Validate(cards, d.cfg.MinCatalogCards, d.cfg.MinEnglishCards); verr != nil {
		if d.cfg.StrictCatalog {
			return nil, fmt.Errorf("catalog validation: %w", verr)
		}
		d.log.Printf("catalog validation failed (%v), retaining previous catalog", verr)
		prev, err := d.store.LoadCatalog()
		if err != nil {
			return nil, err
		}
		if len(prev) > 0 {
			return prev, nil
		}
		d.log.Printf("no previous catalog to retain, continuing with %d built cards", len(cards))
	} else if err := d.store.SaveCatalog(cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// buildCatalog runs the configured source adapters and reconciles their
// output.
func (d *Driver) buildCatalog(ctx context.Context) ([]model.Card, error) {
	switch d.cfg.CatalogStrategy {
	case StrategyTCGdex, StrategySplit:
	default:
		return nil, fmt.Errorf("unknown catalog strategy %q", d.cfg.CatalogStrategy)
	}

	tcgdexClient := catalog.NewTCGdexClient(d.cfg.TCGdexBaseURL, d.http)
	speciesClient := species.NewClient(d.cfg.SpeciesBaseURL, d.http)

	dexCache, err := cache.NewDexCache(filepath.Join(d.cfg.CacheDir, "dex_names.json"), speciesClient.EnglishName)
	if err != nil {
		return nil, err
	}
	speciesCache, err := cache.NewSpeciesCache(filepath.Join(d.cfg.CacheDir, "species_names.json"))
	if err != nil {
		return nil, err
	}
	if err := speciesCache.Ensure(ctx, speciesClient.WalkIndex); err != nil {
		d.log.Printf("species map unavailable (%v), japanese linkage degraded", err)
	}

	agg := catalog.NewAggregate()
	tcgdex := catalog.NewTCGdexAdapter(tcgdexClient)

	switch d.cfg.CatalogStrategy {
	case StrategySplit:
		english := catalog.NewPTCGAPIAdapter(d.cfg.CardAPIBaseURL, d.cfg.CardAPIKey, d.http, dexCache)
		if err := english.Walk(ctx, agg); err != nil {
			if !errors.Is(err, catalog.ErrSourceFailed) {
				return nil, err
			}
			d.log.Printf("english card api failed (%v), falling back to structured walk", err)
			if err := tcgdex.WalkLang(ctx, model.LangEN, agg); err != nil {
				return nil, err
			}
		}
		jpindex := catalog.NewJPIndexAdapter(d.cfg.JPIndexBaseURL, d.http, tcgdexClient, speciesCache)
		if err := jpindex.Walk(ctx, agg); err != nil {
			if !errors.Is(err, catalog.ErrSourceFailed) {
				return nil, err
			}
			d.log.Printf("japanese index failed (%v), falling back to structured walk", err)
			if err := tcgdex.WalkLang(ctx, model.LangJA, agg); err != nil {
				return nil, err
			}
		}
	default:
		if err := tcgdex.Walk(ctx, agg); err != nil {
			return nil, err
		}
	}
	d.log.Printf("catalog sources yielded %d partial records", agg.Len())

	reconciler := catalog.NewReconciler(tcgdexClient, dexCache, speciesCache, catalog.ReconcilerConfig{
		EnrichEnglishKey: d.cfg.EnrichEnglishPokemonKey,
	})
	cards := reconciler.Build(ctx, agg)
	if requests, slept := reconciler.Telemetry(); requests > 0 {
		d.log.Printf("enrichment: %d detail fetches, %s throttled", requests, slept.Round(time.Millisecond))
	}
	return cards, nil
}

// salesPhase loads and prunes the rolling window, collects new sales,
// and persists the merged window.
func (d *Driver) salesPhase(ctx context.Context, cards []model.Card) ([]model.Sale, error) {
	store := window.New(d.store.SalesPath(), d.cfg.DaysWindow)
	retained, err := store.Load()
	if err != nil {
		return nil, err
	}

	matcher := match.New(cards, d.cfg.ConfidenceThreshold)
	coll := collector.New(d.http, matcher, collector.Config{
		BaseURL: d.cfg.MarketplaceBaseURL,
		Pages:   d.cfg.PagesPerQuery,
	})
	collected, stats := coll.Run(ctx, d.cfg.Queries)
	d.log.Printf("collector: %d seen, %d accepted, %d lots, %d unmatched, %d unreadable grades",
		stats.Seen, stats.Accepted, stats.Lots, stats.Unmatched, stats.BadGrade)

	merged := dropUnknownCards(store.Merge(retained, collected), cards, d.log)
	if err := store.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// dropUnknownCards removes sales whose card id is no longer in the
// catalog, e.g. a Japanese printing whose id changed once English
// enrichment started succeeding. Every persisted sale must reference a
// catalog card.
func dropUnknownCards(sales []model.Sale, cards []model.Card, logger *log.Logger) []model.Sale {
	known := make(map[string]bool, len(cards))
	for i := range cards {
		known[cards[i].ID] = true
	}
	out := sales[:0:len(sales)]
	for _, sale := range sales {
		if known[sale.CardID] {
			out = append(out, sale)
		}
	}
	if dropped := len(sales) - len(out); dropped > 0 {
		logger.Printf("window: dropped %d sales referencing cards no longer in the catalog", dropped)
	}
	return out
}
