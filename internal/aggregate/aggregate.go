// Package aggregate rolls the retained sales window up into per-card,
// per-bucket median prices.
package aggregate

import (
	"math"
	"sort"

	"github.com/guarzo/pkmpricewatch/internal/model"
)

// ByCard is the prices artifact body: cardId -> bucket -> aggregate.
// Every card with at least one sale carries all six canonical buckets;
// buckets without sales hold {median_eur: null, n: 0}.
type ByCard map[string]map[model.GradeBucket]model.PriceAggregate

// Build groups sales by card and bucket and computes medians. Sales in
// non-canonical buckets are ignored.
func Build(sales []model.Sale) ByCard {
	canonical := make(map[model.GradeBucket]bool, len(model.CanonicalBuckets))
	for _, b := range model.CanonicalBuckets {
		canonical[b] = true
	}

	grouped := make(map[string]map[model.GradeBucket][]float64)
	for _, sale := range sales {
		if !canonical[sale.Bucket] {
			continue
		}
		buckets, ok := grouped[sale.CardID]
		if !ok {
			buckets = make(map[model.GradeBucket][]float64)
			grouped[sale.CardID] = buckets
		}
		buckets[sale.Bucket] = append(buckets[sale.Bucket], sale.PriceEur)
	}

	out := make(ByCard, len(grouped))
	for cardID, buckets := range grouped {
		row := make(map[model.GradeBucket]model.PriceAggregate, len(model.CanonicalBuckets))
		for _, bucket := range model.CanonicalBuckets {
			row[bucket] = aggregateOf(buckets[bucket])
		}
		out[cardID] = row
	}
	return out
}

func aggregateOf(prices []float64) model.PriceAggregate {
	finite := make([]float64, 0, len(prices))
	for _, p := range prices {
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			finite = append(finite, p)
		}
	}
	if len(finite) == 0 {
		return model.PriceAggregate{MedianEur: nil, N: 0}
	}
	sort.Float64s(finite)
	median := finite[len(finite)/2]
	if len(finite)%2 == 0 {
		median = (finite[len(finite)/2-1] + finite[len(finite)/2]) / 2
	}
	return model.PriceAggregate{MedianEur: &median, N: len(finite)}
}
