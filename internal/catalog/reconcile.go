package catalog

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
	"github.com/guarzo/pkmpricewatch/internal/textnorm"
)

// Japanese set ids follow the series-prefix + "a" suffix convention.
var jaSetPattern = regexp.MustCompile(`^(sv|s|sm|bw|xy)\d{1,3}a$`)

// ReconcilerConfig bounds the enrichment fetch pool.
type ReconcilerConfig struct {
	Workers          int        // concurrent enrichment workers, default 6
	RPS              rate.Limit // request ceiling across workers, default 5
	EnrichEnglishKey bool       // opt-in expensive English linkage pass
}

// Reconciler merges the aggregated partials into final per-printing Cards:
// language inference, enrichment (image backfill, then Japanese-to-English
// linkage, then the optional English linkage), and explosion.
type Reconciler struct {
	tcgdex  *TCGdexClient
	dex     *cache.DexCache
	species *cache.SpeciesCache
	cfg     ReconcilerConfig

	// ~700ms every 40 detail fetches, shared by all workers.
	detailPacer *ratelimit.Pacer
	limiter     *rate.Limiter
}

func NewReconciler(tcgdex *TCGdexClient, dex *cache.DexCache, species *cache.SpeciesCache, cfg ReconcilerConfig) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 6
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	return &Reconciler{
		tcgdex:      tcgdex,
		dex:         dex,
		species:     species,
		cfg:         cfg,
		detailPacer: ratelimit.NewPacer(40, 700*time.Millisecond),
		limiter:     rate.NewLimiter(cfg.RPS, cfg.Workers),
	}
}

// Telemetry reports the enrichment pacer counters for run summaries.
func (r *Reconciler) Telemetry() (requests int, slept time.Duration) {
	return r.detailPacer.Requests(), r.detailPacer.Slept()
}

// InferredLang decides the printing language for a whole set: observed
// Japanese-exclusive beats the id heuristic; everything else is
// unspecified and may explode into both printings.
func InferredLang(agg *Aggregate, setID string) model.Lang {
	if agg.IsJapaneseExclusive(setID) {
		return model.LangJA
	}
	if jaSetPattern.MatchString(strings.ToLower(setID)) {
		return model.LangJA
	}
	return ""
}

// Build enriches every partial with a bounded worker pool and explodes
// them, in first-seen order, into the final catalog.
func (r *Reconciler) Build(ctx context.Context, agg *Aggregate) []model.Card {
	records := agg.Records()

	jobs := make(chan *PartialRecord)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
				r.enrich(ctx, agg, rec)
			}
		}()
	}
	for _, rec := range records {
		select {
		case jobs <- rec:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	cards := make([]model.Card, 0, len(records))
	for _, rec := range records {
		cards = append(cards, r.explode(agg, rec)...)
	}
	return cards
}

// enrich fills one record in the mandated order: image backfill first,
// then language linkage. Each step is skippable; a record that resists
// enrichment still explodes with what it has.
func (r *Reconciler) enrich(ctx context.Context, agg *Aggregate, rec *PartialRecord) {
	lang := InferredLang(agg, rec.SetID)

	if rec.ImageLarge == "" {
		r.backfillImage(ctx, rec)
	}
	if lang == model.LangJA && (rec.NameEn == "" || rec.PokemonKey == "") {
		r.linkJapanese(ctx, rec)
	}
	if r.cfg.EnrichEnglishKey && lang != model.LangJA && rec.PokemonKey == "" {
		r.linkEnglish(ctx, rec)
	}
}

func (r *Reconciler) backfillImage(ctx context.Context, rec *PartialRecord) {
	lang, id := model.LangEN, rec.DetailIDEn
	if id == "" {
		lang, id = model.LangJA, rec.DetailIDJa
	}
	if id == "" || r.tcgdex == nil {
		return
	}
	r.detailPacer.Tick()
	detail, ok := r.tcgdex.CardDetail(ctx, lang, id)
	if !ok {
		return
	}
	rec.ImageLarge = largeImage(detail.Image)
	if rec.DexID == 0 {
		rec.DexID = detail.DexIDs.First()
	}
	fillIfEmpty(&rec.Rarity, detail.Rarity)
}

// linkJapanese resolves the English species name for a Japanese printing:
// card detail -> dex number -> dex cache, with the species-name map as
// the dexless fallback.
func (r *Reconciler) linkJapanese(ctx context.Context, rec *PartialRecord) {
	if rec.DexID == 0 && rec.DetailIDJa != "" && r.tcgdex != nil {
		r.detailPacer.Tick()
		if detail, ok := r.tcgdex.CardDetail(ctx, model.LangJA, rec.DetailIDJa); ok {
			rec.DexID = detail.DexIDs.First()
			fillIfEmpty(&rec.NameJa, detail.Name)
			fillIfEmpty(&rec.ImageLarge, largeImage(detail.Image))
		}
	}

	if rec.DexID != 0 && r.dex != nil {
		if name, ok := r.dex.EnglishName(ctx, rec.DexID); ok {
			fillIfEmpty(&rec.NameEn, name)
			fillIfEmpty(&rec.PokemonKey, textnorm.Normalize(name))
			return
		}
	}
	if r.species != nil && rec.NameJa != "" {
		if sp, ok := r.species.Lookup(rec.NameJa); ok {
			fillIfEmpty(&rec.NameEn, sp.NameEn)
			fillIfEmpty(&rec.PokemonKey, sp.Key)
			if rec.DexID == 0 {
				rec.DexID = sp.DexID
			}
		}
	}
}

func (r *Reconciler) linkEnglish(ctx context.Context, rec *PartialRecord) {
	if rec.DexID == 0 && rec.DetailIDEn != "" && r.tcgdex != nil {
		r.detailPacer.Tick()
		if detail, ok := r.tcgdex.CardDetail(ctx, model.LangEN, rec.DetailIDEn); ok {
			rec.DexID = detail.DexIDs.First()
		}
	}
	if rec.DexID != 0 && r.dex != nil {
		if name, ok := r.dex.EnglishName(ctx, rec.DexID); ok {
			fillIfEmpty(&rec.PokemonKey, textnorm.Normalize(name))
		}
	}
}

// explode turns one partial into its output printings. Japanese-exclusive
// sets emit exactly one ja record even when an English variant name is
// known; unspecified sets emit a printing per available name.
func (r *Reconciler) explode(agg *Aggregate, rec *PartialRecord) []model.Card {
	ensureFeatures(rec)
	if rec.PokemonKey == "" && rec.NameEn != "" {
		rec.PokemonKey = textnorm.Normalize(rec.NameEn)
	}

	if InferredLang(agg, rec.SetID) == model.LangJA {
		name := rec.NameJa
		if name == "" {
			name = rec.NameEn
		}
		if name == "" {
			return nil
		}
		return []model.Card{r.card(rec, model.LangJA, name)}
	}

	var cards []model.Card
	if rec.NameEn != "" {
		cards = append(cards, r.card(rec, model.LangEN, rec.NameEn))
	}
	if rec.NameJa != "" {
		cards = append(cards, r.card(rec, model.LangJA, rec.NameJa))
	}
	return cards
}

func (r *Reconciler) card(rec *PartialRecord, lang model.Lang, name string) model.Card {
	return model.Card{
		ID:           CardID(rec.SetID, rec.Number, preferredName(rec, name), lang),
		CardKey:      model.Key(rec.SetID, rec.Number, lang),
		SetID:        rec.SetID,
		SetName:      rec.SetName,
		Number:       rec.Number,
		NumberFull:   rec.NumberFull,
		PrintingLang: lang,
		Name:         name,
		NameEn:       rec.NameEn,
		NameJa:       rec.NameJa,
		PokemonKey:   rec.PokemonKey,
		Rarity:       rec.Rarity,
		Features:     rec.Features,
		ImageLarge:   rec.ImageLarge,
	}
}

// preferredName picks the English name for id construction whenever one
// exists, so the same printing keeps the same id across runs regardless
// of which display name won.
func preferredName(rec *PartialRecord, display string) string {
	if rec.NameEn != "" {
		return rec.NameEn
	}
	return display
}

// CardID builds the stable catalog identifier
// {setId}-{number}-{normalized-name}-{lang}.
func CardID(setID, number, name string, lang model.Lang) string {
	slug := strings.ReplaceAll(textnorm.Normalize(name), " ", "-")
	return strings.Join([]string{setID, number, slug, string(lang)}, "-")
}
