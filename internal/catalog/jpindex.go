package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/pkmpricewatch/internal/cache"
	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
)

var (
	jpSetHref  = regexp.MustCompile(`/cards/jp/([A-Za-z0-9._-]+)/?$`)
	jpCardHref = regexp.MustCompile(`/cards/jp/([A-Za-z0-9._-]+)/([A-Za-z0-9._-]+)/?$`)

	dexNumberRe    = regexp.MustCompile(`(?:National\s+)?Pok[eé]dex[:\s#]*(\d+)`)
	cardImageSrcRe = regexp.MustCompile(`cards?|image|img`)
)

// hasJapaneseScript reports whether s contains kana or CJK ideographs.
func hasJapaneseScript(s string) bool {
	for _, r := range s {
		if (r >= 0x3040 && r <= 0x30FF) || (r >= 0x3400 && r <= 0x9FFF) {
			return true
		}
	}
	return false
}

// JPIndexAdapter is the Japanese half of the `split` strategy: it scrapes
// the Japanese set index, each set's listing page, and (only when
// strictly needed) per-card detail pages.
type JPIndexAdapter struct {
	base    string
	http    *fetch.Client
	tcgdex  *TCGdexClient // bulk per-set image maps
	species *cache.SpeciesCache

	setPacer    *ratelimit.Pacer // ~250ms every 8 set pages
	detailPacer *ratelimit.Pacer // ~500ms every 40 card pages
}

func NewJPIndexAdapter(base string, httpClient *fetch.Client, tcgdex *TCGdexClient, species *cache.SpeciesCache) *JPIndexAdapter {
	return &JPIndexAdapter{
		base:        strings.TrimRight(base, "/"),
		http:        httpClient,
		tcgdex:      tcgdex,
		species:     species,
		setPacer:    ratelimit.NewPacer(8, 250*time.Millisecond),
		detailPacer: ratelimit.NewPacer(40, 500*time.Millisecond),
	}
}

// Walk scrapes the whole Japanese index into the aggregate. Individual
// missing pages are skipped; only a dead index page is Source-fatal.
func (a *JPIndexAdapter) Walk(ctx context.Context, agg *Aggregate) error {
	body := a.http.HTML(ctx, a.base+"/cards/jp", nil)
	if body == "" {
		return fmt.Errorf("%w: japanese index unavailable", ErrSourceFailed)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: japanese index unparseable", ErrSourceFailed)
	}

	setIDs := a.setIDs(doc)
	if len(setIDs) == 0 {
		return fmt.Errorf("%w: japanese index lists no sets", ErrSourceFailed)
	}

	for _, setID := range setIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.walkSet(ctx, agg, setID)
	}
	return nil
}

func (a *JPIndexAdapter) setIDs(doc *goquery.Document) []string {
	seen := map[string]bool{}
	var ids []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := jpSetHref.FindStringSubmatch(href)
		if m == nil || jpCardHref.MatchString(href) {
			return
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	})
	return ids
}

// cardRow is one scraped listing row before accumulation.
type cardRow struct {
	setID     string
	number    string
	name      string
	nameIsJa  bool
	rowImage  string
	detailURL string
}

func (a *JPIndexAdapter) walkSet(ctx context.Context, agg *Aggregate, setID string) {
	a.setPacer.Tick()
	body := a.http.HTML(ctx, fmt.Sprintf("%s/cards/jp/%s", a.base, setID), nil)
	if body == "" {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return
	}

	agg.MarkJapaneseExclusive(setID)

	// Bulk image map from the structured API beats scraped thumbnails.
	var setImages map[string]string
	if a.tcgdex != nil {
		setImages = a.tcgdex.SetImages(ctx, model.LangJA, setID)
	}

	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := jpCardHref.FindStringSubmatch(href)
		if m == nil || m[1] != setID || seen[m[2]] {
			return
		}
		seen[m[2]] = true

		row := a.parseRow(sel, setID, m[2], href)
		if img, ok := setImages[row.number]; ok {
			row.rowImage = img
		}
		a.accumulate(ctx, agg, row)
	})
}

// parseRow extracts the row's name candidates, image, and detail URL.
// The Japanese name is the first candidate containing actual Japanese
// script; otherwise the romanized text stays as a placeholder until a
// detail fetch or species-map hit resolves it.
func (a *JPIndexAdapter) parseRow(sel *goquery.Selection, setID, number, href string) cardRow {
	row := cardRow{
		setID:     setID,
		number:    number,
		detailURL: a.absolute(href),
	}

	candidates := []string{
		strings.TrimSpace(sel.AttrOr("title", "")),
		strings.TrimSpace(sel.AttrOr("aria-label", "")),
		strings.TrimSpace(sel.Text()),
	}
	if cell := sel.Closest("td"); cell.Length() > 0 {
		candidates = append(candidates, strings.TrimSpace(cell.Next().Text()))
	}
	for _, cand := range candidates {
		if cand != "" && hasJapaneseScript(cand) {
			row.name, row.nameIsJa = cand, true
			break
		}
	}
	if row.name == "" {
		for _, cand := range candidates {
			if cand != "" {
				row.name = cand
				break
			}
		}
	}

	scope := sel.Closest("tr")
	if scope.Length() == 0 {
		scope = sel.Parent()
	}
	if src, ok := scope.Find("img").Attr("src"); ok {
		row.rowImage = a.absolute(src)
	}
	return row
}

func (a *JPIndexAdapter) accumulate(ctx context.Context, agg *Aggregate, row cardRow) {
	nameJa := row.name
	dexID := 0
	image := row.rowImage

	// Detail fetch only when strictly needed: the name is missing or
	// romanized and the species map cannot already translate it.
	needsDetail := !row.nameIsJa
	if needsDetail && a.species != nil && row.name != "" {
		if _, ok := a.species.Lookup(row.name); ok {
			needsDetail = false
		}
	}
	if needsDetail && row.detailURL != "" {
		if d := a.fetchDetail(ctx, row.detailURL); d != nil {
			if d.nameJa != "" {
				nameJa = d.nameJa
			}
			dexID = d.dexID
			if image == "" {
				image = d.image
			}
		}
	}

	agg.Upsert(row.setID, row.number, func(rec *PartialRecord) {
		fillIfEmpty(&rec.NameJa, nameJa)
		fillIfEmpty(&rec.ImageLarge, image)
		fillIfEmpty(&rec.DetailURL, row.detailURL)
		if rec.DexID == 0 {
			rec.DexID = dexID
		}
		rec.FromIndex = true
	})
}

type jpDetail struct {
	nameJa string
	dexID  int
	image  string
}

// fetchDetail scrapes one per-card page: the first short Japanese text
// node becomes the name, the dex number comes from the body text, and
// the image from the open-graph tag or the first card-looking img URL.
func (a *JPIndexAdapter) fetchDetail(ctx context.Context, detailURL string) *jpDetail {
	a.detailPacer.Tick()
	body := a.http.HTML(ctx, detailURL, nil)
	if body == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	d := &jpDetail{}

	doc.Find("body *").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if text != "" && len([]rune(text)) <= 40 && hasJapaneseScript(text) {
			d.nameJa = text
			return false
		}
		return true
	})

	if m := dexNumberRe.FindStringSubmatch(doc.Text()); m != nil {
		d.dexID, _ = strconv.Atoi(m[1])
	}

	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
		d.image = a.absolute(og)
	} else {
		doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			src, _ := sel.Attr("src")
			if src != "" && cardImageSrcRe.MatchString(strings.ToLower(src)) {
				d.image = a.absolute(src)
				return false
			}
			return true
		})
	}
	return d
}

// absolute resolves scraped hrefs/srcs against the index host.
func (a *JPIndexAdapter) absolute(ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(a.base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
