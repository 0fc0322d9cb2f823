package model

import (
	"fmt"
	"strings"
	"time"
)

// Lang identifies the language a physical card was printed in.
type Lang string

const (
	LangEN Lang = "en"
	LangJA Lang = "ja"
)

// Card is one printing of one card, the unit of the catalog.
// A card printed in both languages yields two Cards sharing setId/number.
type Card struct {
	ID           string   `json:"id"`
	CardKey      string   `json:"cardKey"`
	SetID        string   `json:"setId"`
	SetName      string   `json:"setName,omitempty"`
	Number       string   `json:"number"`
	NumberFull   string   `json:"numberFull,omitempty"`
	PrintingLang Lang     `json:"lang"`
	Name         string   `json:"name"`
	NameEn       string   `json:"nameEn,omitempty"`
	NameJa       string   `json:"nameJa,omitempty"`
	PokemonKey   string   `json:"pokemonKey,omitempty"`
	Rarity       string   `json:"rarity,omitempty"`
	Features     []string `json:"features,omitempty"`
	ImageLarge   string   `json:"imageLarge,omitempty"`
}

// Key builds the internal join key for a (set, number, lang) triple.
func Key(setID, number string, lang Lang) string {
	return fmt.Sprintf("%s|%s|%s", setID, number, lang)
}

// GradeBucket classifies a sold listing: raw, or one of five graded tiers.
type GradeBucket string

const (
	BucketRaw     GradeBucket = "raw"
	BucketGrade7  GradeBucket = "graad_7"
	BucketGrade8  GradeBucket = "graad_8"
	BucketGrade9  GradeBucket = "graad_9"
	BucketGrade95 GradeBucket = "graad_9_5"
	BucketGrade10 GradeBucket = "graad_10"

	// BucketUnknown marks a graded listing whose grade could not be read.
	// It never reaches persisted output; such listings are dropped.
	BucketUnknown GradeBucket = "graad_unknown"
)

// CanonicalBuckets are the only bucket keys ever persisted.
var CanonicalBuckets = []GradeBucket{
	BucketRaw, BucketGrade7, BucketGrade8, BucketGrade9, BucketGrade95, BucketGrade10,
}

// Sale is one observed sold listing matched to a catalog card.
type Sale struct {
	CollectedAt time.Time   `json:"collectedAt"`
	Source      string      `json:"source"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	PriceEur    float64     `json:"priceEur"`
	CardID      string      `json:"cardId"`
	Bucket      GradeBucket `json:"bucket"`
}

// DedupKey identifies a sale across runs. Two observations of the same
// listing collapse onto one key even when collected on different days or
// with different tracking parameters on the listing URL, which is stored
// as observed.
func (s Sale) DedupKey() string {
	url := s.URL
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return fmt.Sprintf("%s|%.2f|%s|%s", url, s.PriceEur, s.CardID, s.Bucket)
}

// PriceAggregate is the rolled-up price for one (card, bucket) group.
type PriceAggregate struct {
	MedianEur *float64 `json:"median_eur"`
	N         int      `json:"n"`
}
