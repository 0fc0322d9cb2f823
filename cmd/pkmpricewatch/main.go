// pkmpricewatch builds the card catalog, collects sold listings, and
// writes the price artifacts.
//
// Usage: pkmpricewatch [flags]
//
// One run produces, under -data:
//   - catalog.json   - the reconciled card catalog
//   - sales_30d.json - the rolling 30-day sales window
//   - prices.json    - per-card, per-bucket median prices
//   - meta.json      - run metadata
//
// With -schedule the run repeats on a cron expression instead of
// exiting.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/guarzo/pkmpricewatch/internal/collector"
	"github.com/guarzo/pkmpricewatch/internal/match"
	"github.com/guarzo/pkmpricewatch/internal/pipeline"
	"github.com/guarzo/pkmpricewatch/internal/window"
)

// defaultQueries is the built-in search list used when -queries is not
// given.
var defaultQueries = []collector.Query{
	{Keywords: "pokemon graad", GradedOnly: true},
	{Keywords: "pokemon card jap graad", GradedOnly: true},
	{Keywords: "carte pokemon"},
}

func main() {
	// Missing .env is fine; environment variables still apply.
	_ = godotenv.Load()

	var (
		dataDir     = flag.String("data", pipeline.DefaultDataDir, "output directory for artifacts and caches")
		strategy    = flag.String("catalog-strategy", pipeline.StrategyTCGdex, "catalog build strategy: tcgdex or split")
		skipCatalog = flag.Bool("skip-catalog", false, "reuse the persisted catalog when non-empty")
		strict      = flag.Bool("strict-catalog", false, "fail the run when catalog validation fails")
		enrichEn    = flag.Bool("enrich-english-key", false, "run the expensive English pokemonKey linkage pass")
		minCards    = flag.Int("min-catalog-cards", 0, "catalog size floor (0 = default 12000)")
		minEnglish  = flag.Int("min-english-cards", 0, "English coverage floor (0 = default 8000)")
		days        = flag.Int("days-window", window.DefaultDays, "sales retention horizon in days")
		pages       = flag.Int("pages-per-query", collector.DefaultPages, "sold-listing pages fetched per query")
		threshold   = flag.Float64("confidence-threshold", match.DefaultThreshold, "matcher acceptance floor")
		queriesPath = flag.String("queries", "", "JSON file with [{keywords, gradedOnly}] search queries")
		schedule    = flag.String("schedule", "", "cron expression for repeated runs (empty = run once)")
	)
	flag.Parse()

	queries := defaultQueries
	if *queriesPath != "" {
		loaded, err := loadQueries(*queriesPath)
		if err != nil {
			log.Fatalf("queries: %v", err)
		}
		queries = loaded
	}

	cfg := pipeline.Config{
		DataDir:                 *dataDir,
		SkipCatalog:             *skipCatalog,
		CatalogStrategy:         *strategy,
		EnrichEnglishPokemonKey: *enrichEn,
		StrictCatalog:           *strict,
		MinCatalogCards:         *minCards,
		MinEnglishCards:         *minEnglish,
		DaysWindow:              *days,
		PagesPerQuery:           *pages,
		ConfidenceThreshold:     *threshold,
		Queries:                 queries,
		CardAPIKey:              os.Getenv("POKEMONTCG_API_KEY"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := pipeline.New(cfg, log.Default())

	if *schedule == "" {
		if err := driver.Run(ctx); err != nil {
			log.Fatalf("run failed: %v", err)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := driver.Run(ctx); err != nil {
			log.Printf("scheduled run failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule %q: %v", *schedule, err)
	}
	log.Printf("scheduled on %q, waiting", *schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

func loadQueries(path string) ([]collector.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var queries []collector.Query
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s lists no queries", path)
	}
	return queries, nil
}
