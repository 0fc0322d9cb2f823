package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
	"github.com/guarzo/pkmpricewatch/internal/textnorm"
)

const DefaultPTCGBaseURL = "https://api.pokemontcg.io"

// ErrSourceFailed reports that an adapter could make no progress at all.
// The reconciler reacts by switching to the fallback adapter.
var ErrSourceFailed = errors.New("catalog source failed")

// PTCGAPIAdapter is the English half of the `split` catalog strategy:
// one paginated walk of the English card API.
type PTCGAPIAdapter struct {
	base   string
	apiKey string
	http   *fetch.Client
	dex    *cache.DexCache

	// ~200ms every 6 pages.
	pagePacer *ratelimit.Pacer
}

func NewPTCGAPIAdapter(base, apiKey string, httpClient *fetch.Client, dex *cache.DexCache) *PTCGAPIAdapter {
	if base == "" {
		base = DefaultPTCGBaseURL
	}
	return &PTCGAPIAdapter{
		base:      base,
		apiKey:    apiKey,
		http:      httpClient,
		dex:       dex,
		pagePacer: ratelimit.NewPacer(6, 200*time.Millisecond),
	}
}

type ptcgRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	Set    struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		PrintedTotal int    `json:"printedTotal"`
	} `json:"set"`
	NationalPokedexNumbers []int `json:"nationalPokedexNumbers"`
	Images                 struct {
		Large string `json:"large"`
	} `json:"images"`
}

// Walk pages through /v2/cards and accumulates English partials.
// Returns ErrSourceFailed on unrecoverable status, exhausted retries, or
// an empty page with a non-zero declared total; the caller then falls
// back to the structured API's English walk.
func (a *PTCGAPIAdapter) Walk(ctx context.Context, agg *Aggregate) error {
	const pageSize = 250
	headers := map[string]string{}
	if a.apiKey != "" {
		headers["X-Api-Key"] = a.apiKey
	}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.pagePacer.Tick()

		q := url.QueryEscape("supertype:pokemon")
		u := fmt.Sprintf("%s/v2/cards?page=%d&pageSize=%d&q=%s", a.base, page, pageSize, q)

		var resp struct {
			Data       []ptcgRow `json:"data"`
			TotalCount int       `json:"totalCount"`
		}
		ok, status := a.http.JSONStatus(ctx, u, headers, &resp)
		if !ok {
			switch status {
			case http.StatusUnauthorized, http.StatusForbidden:
				return fmt.Errorf("%w: card api status %d", ErrSourceFailed, status)
			default:
				// Exhausted retries (429/5xx) or network failure.
				return fmt.Errorf("%w: card api page %d unavailable", ErrSourceFailed, page)
			}
		}
		if len(resp.Data) == 0 {
			// The loop only requests a page the declared total says
			// exists, so an empty one means the walk was truncated.
			if resp.TotalCount > 0 {
				return fmt.Errorf("%w: card api declared %d cards but page %d is empty", ErrSourceFailed, resp.TotalCount, page)
			}
			return nil
		}

		for _, row := range resp.Data {
			a.accumulate(ctx, agg, row)
		}

		if page*pageSize >= resp.TotalCount {
			return nil
		}
	}
}

func (a *PTCGAPIAdapter) accumulate(ctx context.Context, agg *Aggregate, row ptcgRow) {
	if row.Set.ID == "" || row.Number == "" || row.Name == "" {
		return
	}
	key := a.pokemonKey(ctx, row)
	agg.Upsert(row.Set.ID, row.Number, func(rec *PartialRecord) {
		fillIfEmpty(&rec.SetName, row.Set.Name)
		fillIfEmpty(&rec.NameEn, row.Name)
		fillIfEmpty(&rec.Rarity, row.Rarity)
		fillIfEmpty(&rec.ImageLarge, row.Images.Large)
		fillIfEmpty(&rec.PokemonKey, key)
		if row.Set.PrintedTotal > 0 {
			fillIfEmpty(&rec.NumberFull, fmt.Sprintf("%s/%d", row.Number, row.Set.PrintedTotal))
		}
		if rec.DexID == 0 && len(row.NationalPokedexNumbers) > 0 {
			rec.DexID = row.NationalPokedexNumbers[0]
		}
		ensureFeatures(rec)
		rec.FromAPI = true
	})
}

// pokemonKey derives the cross-language anchor: the dex-resolved species
// name when a dex number is present, the normalized card name otherwise.
func (a *PTCGAPIAdapter) pokemonKey(ctx context.Context, row ptcgRow) string {
	if len(row.NationalPokedexNumbers) > 0 && a.dex != nil {
		if name, ok := a.dex.EnglishName(ctx, row.NationalPokedexNumbers[0]); ok {
			return textnorm.Normalize(name)
		}
	}
	return textnorm.Normalize(row.Name)
}
