// Package collector scrapes sold/completed marketplace listings for a
// fixed set of keyword queries, classifies each listing into a grade
// bucket, and matches it against the catalog. Accepted listings become
// Sales; everything else is dropped with a counted reason.
package collector

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/pkmpricewatch/internal/fetch"
	"github.com/guarzo/pkmpricewatch/internal/match"
	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/ratelimit"
	"github.com/guarzo/pkmpricewatch/internal/titles"
)

const (
	DefaultBaseURL = "https://www.ebay.it"
	DefaultPages   = 2

	// Trading Card Games category.
	defaultCategory = "183454"

	// Remote item-condition filter for professionally graded cards.
	gradedConditionID = "2750"

	sourceName = "ebay"
)

// Query is one configured keyword search. GradedOnly selects the remote
// graded-condition filter and additionally drops any result whose title
// carries no readable grade.
type Query struct {
	Keywords   string `json:"keywords"`
	GradedOnly bool   `json:"gradedOnly"`
}

// Stats counts what happened to the listings of one run.
type Stats struct {
	Seen      int
	Lots      int
	BadGrade  int
	Ungraded  int
	NoPrice   int
	Unmatched int
	Accepted  int
}

// Config tunes one Collector. Zero values select the defaults above.
type Config struct {
	BaseURL  string
	Category string
	Pages    int
	MinDelay time.Duration // floor between page fetches, default 1s
}

// Collector runs the configured queries against one marketplace host.
type Collector struct {
	base     string
	category string
	pages    int
	http     *fetch.Client
	matcher  *match.Matcher
	throttle *ratelimit.Throttle
	now      func() time.Time
}

func New(httpClient *fetch.Client, matcher *match.Matcher, cfg Config) *Collector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Category == "" {
		cfg.Category = defaultCategory
	}
	if cfg.Pages <= 0 {
		cfg.Pages = DefaultPages
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	return &Collector{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		category: cfg.Category,
		pages:    cfg.Pages,
		http:     httpClient,
		matcher:  matcher,
		throttle: ratelimit.NewThrottle(cfg.MinDelay),
		now:      time.Now,
	}
}

// Run executes every query over the configured page range and returns
// the accepted sales in listing order.
func (c *Collector) Run(ctx context.Context, queries []Query) ([]model.Sale, Stats) {
	var sales []model.Sale
	var stats Stats

	for _, q := range queries {
		for page := 1; page <= c.pages; page++ {
			if ctx.Err() != nil {
				return sales, stats
			}
			c.throttle.Wait()
			body := c.http.HTML(ctx, c.searchURL(q, page), nil)
			if body == "" {
				continue
			}
			sales = append(sales, c.parsePage(body, q, &stats)...)
		}
	}
	return sales, stats
}

// searchURL builds one sold/completed results page URL.
func (c *Collector) searchURL(q Query, page int) string {
	params := url.Values{}
	params.Set("_nkw", q.Keywords)
	params.Set("_sacat", c.category)
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("rt", "nc")
	params.Set("_pgn", strconv.Itoa(page))
	if q.GradedOnly {
		params.Set("LH_ItemCondition", gradedConditionID)
	}
	return c.base + "/sch/i.html?" + params.Encode()
}

// listing is one scraped result row.
type listing struct {
	title     string
	url       string
	priceText string
}

func (c *Collector) parsePage(body string, q Query, stats *Stats) []model.Sale {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var sales []model.Sale
	doc.Find(".s-item").Each(func(_ int, sel *goquery.Selection) {
		row := listing{
			title:     strings.TrimSpace(sel.Find(".s-item__title").Text()),
			priceText: strings.TrimSpace(sel.Find(".s-item__price").Text()),
		}
		row.url, _ = sel.Find("a.s-item__link").Attr("href")

		// Results pages lead with a template placeholder row.
		if row.title == "" || strings.EqualFold(row.title, "Shop on eBay") {
			return
		}
		stats.Seen++

		if sale, ok := c.classify(row, q, stats); ok {
			sales = append(sales, sale)
		}
	})
	return sales
}

// classify runs one listing through the drop rules and the matcher.
func (c *Collector) classify(row listing, q Query, stats *Stats) (model.Sale, bool) {
	if titles.IsLikelyLot(row.title) {
		stats.Lots++
		return model.Sale{}, false
	}

	bucket, graded := titles.DetectGradingBucket(row.title)
	if graded && bucket == model.BucketUnknown {
		stats.BadGrade++
		return model.Sale{}, false
	}
	if q.GradedOnly && !graded {
		stats.Ungraded++
		return model.Sale{}, false
	}
	if !graded {
		bucket = model.BucketRaw
	}

	price, ok := titles.ParseEurPrice(row.priceText)
	if !ok {
		price, ok = titles.ParseEurPrice(row.title)
	}
	if !ok {
		stats.NoPrice++
		return model.Sale{}, false
	}

	res, ok := c.matcher.Accept(row.title)
	if !ok {
		stats.Unmatched++
		return model.Sale{}, false
	}

	stats.Accepted++
	// The listing URL is stored as observed; Sale.DedupKey canonicalizes
	// away tracking parameters when collapsing repeat observations.
	return model.Sale{
		CollectedAt: c.now().UTC().Truncate(time.Second),
		Source:      sourceName,
		Title:       row.title,
		URL:         row.url,
		PriceEur:    price,
		CardID:      res.Card.ID,
		Bucket:      bucket,
	}, true
}
