// Package catalog builds the unified card catalog: three source adapters
// accumulate partial records into one aggregation map, the reconciler
// merges, enriches, and explodes them into final per-printing cards, and
// the validator gates the result.
package catalog

import (
	"fmt"
	"sync"
)

// PartialRecord is everything the sources collectively know about one
// (set, number) before reconciliation. Provenance flags make precedence
// auditable: fields are first-non-empty wins, recorded per source.
type PartialRecord struct {
	SetID      string
	SetName    string
	Number     string
	NumberFull string

	NameEn string
	NameJa string

	Rarity     string
	Features   []string
	ImageLarge string

	// Enrichment inputs.
	DexID      int
	PokemonKey string // set directly by the English API adapter
	DetailIDEn string // structured-API card id, English locale
	DetailIDJa string // structured-API card id, Japanese locale
	DetailURL  string // Japanese index per-card page

	FromEn    bool // structured API, en walk
	FromJa    bool // structured API, ja walk
	FromAPI   bool // English primary card API
	FromIndex bool // Japanese HTML index
}

// Aggregate is the shared accumulation map keyed by setId|number.
// Adapters may fill it from bounded-parallel fetches, so access is
// serialized; iteration replays first-seen order to keep downstream
// output deterministic.
type Aggregate struct {
	mu          sync.Mutex
	records     map[string]*PartialRecord
	order       []string
	jaExclusive map[string]bool
}

func NewAggregate() *Aggregate {
	return &Aggregate{
		records:     make(map[string]*PartialRecord),
		jaExclusive: make(map[string]bool),
	}
}

func aggKey(setID, number string) string {
	return fmt.Sprintf("%s|%s", setID, number)
}

// Upsert returns the record for (setID, number), creating it on first
// sight, and applies fill under the lock.
func (a *Aggregate) Upsert(setID, number string, fill func(*PartialRecord)) {
	key := aggKey(setID, number)
	a.mu.Lock()
	rec, ok := a.records[key]
	if !ok {
		rec = &PartialRecord{SetID: setID, Number: number}
		a.records[key] = rec
		a.order = append(a.order, key)
	}
	fill(rec)
	a.mu.Unlock()
}

// MarkJapaneseExclusive records that setID was observed under the
// Japanese index or ja walk, which pins its printings to a single ja
// record at explosion time.
func (a *Aggregate) MarkJapaneseExclusive(setID string) {
	a.mu.Lock()
	a.jaExclusive[setID] = true
	a.mu.Unlock()
}

// IsJapaneseExclusive reports whether setID was marked.
func (a *Aggregate) IsJapaneseExclusive(setID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jaExclusive[setID]
}

// Records returns the partials in first-seen order.
func (a *Aggregate) Records() []*PartialRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*PartialRecord, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.records[key])
	}
	return out
}

// Len reports the number of distinct (set, number) pairs seen.
func (a *Aggregate) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// fillIfEmpty assigns *dst = v only when *dst is still empty.
func fillIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// ensureFeatures echoes the rarity into features when nothing else set them.
func ensureFeatures(rec *PartialRecord) {
	if len(rec.Features) == 0 && rec.Rarity != "" {
		rec.Features = []string{rec.Rarity}
	}
}
