// Package species talks to the species API that anchors cross-language
// enrichment: dex id -> English name, and the paginated index walk that
// seeds the Japanese-name map.
package species

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
	"github.com/guarzo/pkmpricewatch/internal/textnorm"
)

const DefaultBaseURL = "https://pokeapi.co/api/v2"

var idFromURL = regexp.MustCompile(`/pokemon-species/(\d+)/?$`)

type Client struct {
	base string
	http *fetch.Client

	// Pagination floors: ~200ms every 6 index pages, ~500ms every 50
	// species details during the one-time walk.
	pagePacer   *ratelimit.Pacer
	detailPacer *ratelimit.Pacer
}

func NewClient(base string, httpClient *fetch.Client) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		base:        base,
		http:        httpClient,
		pagePacer:   ratelimit.NewPacer(6, 200*time.Millisecond),
		detailPacer: ratelimit.NewPacer(50, 500*time.Millisecond),
	}
}

type speciesDetail struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Names []struct {
		Language struct {
			Name string `json:"name"`
		} `json:"language"`
		Name string `json:"name"`
	} `json:"names"`
}

func (d *speciesDetail) localized(lang string) string {
	for _, n := range d.Names {
		if n.Language.Name == lang {
			return n.Name
		}
	}
	return ""
}

// EnglishName resolves one dex id to its English-locale species name.
// Satisfies cache.DexResolver.
func (c *Client) EnglishName(ctx context.Context, dexID int) (string, bool) {
	c.detailPacer.Tick()
	var d speciesDetail
	if !c.http.JSON(ctx, fmt.Sprintf("%s/pokemon-species/%d/", c.base, dexID), nil, &d) {
		return "", false
	}
	if name := d.localized("en"); name != "" {
		return name, true
	}
	// The default slug is already English for every species.
	return d.Name, d.Name != ""
}

// WalkIndex pages through the species index and emits one record per
// species that carries a Japanese-locale name. Satisfies cache.IndexWalker.
func (c *Client) WalkIndex(ctx context.Context, emit func(jaName string, sp cache.Species)) error {
	next := fmt.Sprintf("%s/pokemon-species?limit=200&offset=0", c.base)
	pages := 0

	for next != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.pagePacer.Tick()

		var page struct {
			Next    string `json:"next"`
			Results []struct {
				URL string `json:"url"`
			} `json:"results"`
		}
		if !c.http.JSON(ctx, next, nil, &page) {
			if pages == 0 {
				return fmt.Errorf("species index: no pages fetched")
			}
			return nil // partial walk; the cache keeps what it has
		}
		pages++

		for _, r := range page.Results {
			m := idFromURL.FindStringSubmatch(r.URL)
			if m == nil {
				continue
			}
			id, _ := strconv.Atoi(m[1])

			c.detailPacer.Tick()
			var d speciesDetail
			if !c.http.JSON(ctx, fmt.Sprintf("%s/pokemon-species/%d/", c.base, id), nil, &d) {
				continue
			}
			en := d.localized("en")
			if en == "" {
				en = d.Name
			}
			ja := d.localized("ja")
			if ja == "" {
				ja = d.localized("ja-Hrkt")
			}
			if ja == "" || en == "" {
				continue
			}
			emit(ja, cache.Species{
				DexID:  d.ID,
				NameEn: en,
				Key:    textnorm.Normalize(en),
			})
		}
		next = page.Next
	}
	return nil
}
