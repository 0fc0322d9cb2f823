package catalog

import (
	"fmt"

	"github.com/guarzo/pkmpricewatch/internal/model"
)

// Default validation thresholds. A healthy full build lands well above
// both; falling under either means a source silently broke.
const (
	DefaultMinCards        = 12000
	DefaultMinEnglishCards = 8000
)

// Validate asserts the minimum size and English-coverage thresholds.
// The caller decides whether a violation is fatal (strict mode) or
// downgrades to keeping the previous catalog.
func Validate(cards []model.Card, minCards, minEnglish int) error {
	if minCards <= 0 {
		minCards = DefaultMinCards
	}
	if minEnglish <= 0 {
		minEnglish = DefaultMinEnglishCards
	}

	if len(cards) < minCards {
		return fmt.Errorf("catalog too small: %d cards, need %d", len(cards), minCards)
	}
	english := 0
	for i := range cards {
		if cards[i].PrintingLang == model.LangEN {
			english++
		}
	}
	if english < minEnglish {
		return fmt.Errorf("english coverage too low: %d cards, need %d", english, minEnglish)
	}
	return nil
}
