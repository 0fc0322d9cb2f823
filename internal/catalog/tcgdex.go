package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
)

const DefaultTCGdexBaseURL = "https://api.tcgdex.net/v2"

// pocket-edition sub-series excluded from the catalog entirely
const excludedSeriesID = "tcgp"

// DexIDs tolerates every shape the upstream uses for the national dex
// field: a bare number, an array of numbers, or a numeric string.
type DexIDs []int

func (d *DexIDs) UnmarshalJSON(data []byte) error {
	var one int
	if err := json.Unmarshal(data, &one); err == nil {
		*d = DexIDs{one}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err == nil {
		*d = DexIDs(many)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*d = DexIDs{n}
		}
		return nil
	}
	// Unknown shape: treat as absent rather than failing the record.
	*d = nil
	return nil
}

// First returns the first dex id, or 0 when none.
func (d DexIDs) First() int {
	if len(d) == 0 {
		return 0
	}
	return d[0]
}

// TCGdexSet is the brief set listing entry.
type TCGdexSet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CardCount struct {
		Total    int `json:"total"`
		Official int `json:"official"`
	} `json:"cardCount"`
}

// TCGdexCardBrief is a card row inside a set detail.
type TCGdexCardBrief struct {
	ID      string `json:"id"`
	LocalID string `json:"localId"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Rarity  string `json:"rarity"`
}

// TCGdexCardDetail is the full card resource.
type TCGdexCardDetail struct {
	ID      string `json:"id"`
	LocalID string `json:"localId"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Rarity  string `json:"rarity"`
	DexIDs  DexIDs `json:"dexId"`
	Set     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
}

type TCGdexSetDetail struct {
	TCGdexSet
	Serie struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"serie"`
	Cards []TCGdexCardBrief `json:"cards"`
}

// TCGdexClient speaks the dual-language structured card API.
type TCGdexClient struct {
	base string
	http *fetch.Client

	// ~250ms every 8 set-level fetches.
	setPacer *ratelimit.Pacer
}

func NewTCGdexClient(base string, httpClient *fetch.Client) *TCGdexClient {
	if base == "" {
		base = DefaultTCGdexBaseURL
	}
	return &TCGdexClient{
		base:     base,
		http:     httpClient,
		setPacer: ratelimit.NewPacer(8, 250*time.Millisecond),
	}
}

// Sets lists the brief set index for one language.
func (c *TCGdexClient) Sets(ctx context.Context, lang model.Lang) ([]TCGdexSet, bool) {
	c.setPacer.Tick()
	var sets []TCGdexSet
	ok := c.http.JSON(ctx, fmt.Sprintf("%s/%s/sets", c.base, lang), nil, &sets)
	return sets, ok
}

// SetDetail fetches one set with its nested card rows. ok=false means the
// set is missing or the serie is excluded.
func (c *TCGdexClient) SetDetail(ctx context.Context, lang model.Lang, setID string) (*TCGdexSetDetail, bool) {
	c.setPacer.Tick()
	var detail TCGdexSetDetail
	if !c.http.JSON(ctx, fmt.Sprintf("%s/%s/sets/%s", c.base, lang, setID), nil, &detail) {
		return nil, false
	}
	if detail.Serie.ID == excludedSeriesID {
		return nil, false
	}
	return &detail, true
}

// CardDetail fetches one full card resource.
func (c *TCGdexClient) CardDetail(ctx context.Context, lang model.Lang, cardID string) (*TCGdexCardDetail, bool) {
	var detail TCGdexCardDetail
	if !c.http.JSON(ctx, fmt.Sprintf("%s/%s/cards/%s", c.base, lang, cardID), nil, &detail) {
		return nil, false
	}
	return &detail, true
}

// SetImages bulk-builds the localId -> large-image map for one set, used
// by the Japanese index adapter in preference to scraped row images.
func (c *TCGdexClient) SetImages(ctx context.Context, lang model.Lang, setID string) map[string]string {
	detail, ok := c.SetDetail(ctx, lang, setID)
	if !ok {
		return nil
	}
	images := make(map[string]string, len(detail.Cards))
	for _, card := range detail.Cards {
		if card.Image != "" {
			images[card.LocalID] = largeImage(card.Image)
		}
	}
	return images
}

// largeImage turns the API's extensionless image base into the concrete
// high-resolution asset URL.
func largeImage(base string) string {
	if base == "" {
		return ""
	}
	if strings.Contains(base[strings.LastIndex(base, "/")+1:], ".") {
		return base
	}
	return base + "/high.webp"
}

// TCGdexAdapter walks sets then cards for both languages, accumulating
// partial records (the `tcgdex` catalog strategy).
type TCGdexAdapter struct {
	client *TCGdexClient
}

func NewTCGdexAdapter(client *TCGdexClient) *TCGdexAdapter {
	return &TCGdexAdapter{client: client}
}

// Walk runs the full dual-language walk.
func (a *TCGdexAdapter) Walk(ctx context.Context, agg *Aggregate) error {
	if err := a.WalkLang(ctx, model.LangEN, agg); err != nil {
		return err
	}
	return a.WalkLang(ctx, model.LangJA, agg)
}

// WalkLang walks one language. The en-only form doubles as the fallback
// adapter when the English primary API hard-fails.
func (a *TCGdexAdapter) WalkLang(ctx context.Context, lang model.Lang, agg *Aggregate) error {
	sets, ok := a.client.Sets(ctx, lang)
	if !ok {
		return fmt.Errorf("tcgdex %s: set index unavailable", lang)
	}

	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		detail, ok := a.client.SetDetail(ctx, lang, set.ID)
		if !ok {
			continue // missing or excluded sub-series
		}
		if lang == model.LangJA {
			agg.MarkJapaneseExclusive(detail.ID)
		}

		for _, card := range detail.Cards {
			if card.LocalID == "" || card.Name == "" {
				continue
			}
			a.accumulate(agg, lang, detail, card)
		}
	}
	return nil
}

func (a *TCGdexAdapter) accumulate(agg *Aggregate, lang model.Lang, set *TCGdexSetDetail, card TCGdexCardBrief) {
	agg.Upsert(set.ID, card.LocalID, func(rec *PartialRecord) {
		fillIfEmpty(&rec.SetName, set.Name)
		if set.CardCount.Official > 0 {
			fillIfEmpty(&rec.NumberFull, fmt.Sprintf("%s/%d", card.LocalID, set.CardCount.Official))
		}
		fillIfEmpty(&rec.Rarity, card.Rarity)
		fillIfEmpty(&rec.ImageLarge, largeImage(card.Image))
		ensureFeatures(rec)

		switch lang {
		case model.LangJA:
			fillIfEmpty(&rec.NameJa, card.Name)
			fillIfEmpty(&rec.DetailIDJa, card.ID)
			rec.FromJa = true
		default:
			fillIfEmpty(&rec.NameEn, card.Name)
			fillIfEmpty(&rec.DetailIDEn, card.ID)
			rec.FromEn = true
		}
	})
}
