// Package match resolves noisy marketplace titles to catalog cards with a
// confidence score. Matching is deliberately conservative: normalized
// substring containment plus signal agreement, never fuzzy similarity.
package match

import (
	"strings"

	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/textnorm"
	"github.com/guarzo/pkmpricewatch/internal/titles"
)

// Mode records which pass produced a match.
type Mode string

const (
	ModeNameOnly Mode = "name-only"
	ModeStrict   Mode = "strict"
	ModeLoose    Mode = "loose"
)

// DefaultThreshold is the confidence floor for downstream acceptance.
const DefaultThreshold = 0.72

// Result is the matcher outcome. Card is nil when nothing matched.
type Result struct {
	Card       *model.Card
	Confidence float64
	Mode       Mode
}

// Matcher matches titles against a fixed catalog snapshot.
type Matcher struct {
	cards     []model.Card
	threshold float64
}

// New builds a matcher over the catalog. threshold <= 0 selects
// DefaultThreshold.
func New(cards []model.Card, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{cards: cards, threshold: threshold}
}

// Match finds the best candidate card for a title. Lots never match.
func (m *Matcher) Match(title string) Result {
	sig := titles.Parse(title)
	if sig.IsLot {
		return Result{}
	}
	normTitle := " " + textnorm.NormalizeQuery(title) + " "

	if sig.LocalID == "" {
		return m.nameOnly(sig, normTitle)
	}

	if res := m.pass(sig, normTitle, true); res.Card != nil {
		return res
	}
	return m.pass(sig, normTitle, false)
}

// Accept applies the confidence threshold on top of Match.
func (m *Matcher) Accept(title string) (Result, bool) {
	res := m.Match(title)
	if res.Card == nil || res.Confidence < m.threshold {
		return Result{}, false
	}
	return res, true
}

// nameOnly handles titles without a usable card number: language and name
// containment carry the match, with a deliberately capped confidence.
func (m *Matcher) nameOnly(sig titles.Signals, normTitle string) Result {
	var best *model.Card
	for i := range m.cards {
		c := &m.cards[i]
		if sig.Lang != "" && c.PrintingLang != sig.Lang {
			continue
		}
		if sig.SetCode != "" && !sameKey(c.SetID, sig.SetCode) {
			continue
		}
		if !nameInTitle(c, normTitle) {
			continue
		}
		if best == nil || preferImage(c, best) {
			best = c
		}
	}
	if best == nil {
		return Result{}
	}

	conf := 0.72
	if sig.SetCode != "" {
		conf += 0.05
	}
	if sig.Lang != "" {
		conf += 0.03
	}
	if conf > 0.82 {
		conf = 0.82
	}
	return Result{Card: best, Confidence: conf, Mode: ModeNameOnly}
}

// pass runs one number-bearing matching pass. strict additionally
// requires set-code equality; loose replaces it with a set-family
// preference on the first two characters.
func (m *Matcher) pass(sig titles.Signals, normTitle string, strict bool) Result {
	var (
		best       *model.Card
		bestFamily bool
	)
	family := ""
	if len(sig.SetCode) >= 2 {
		family = sig.SetCode[:2]
	}

	for i := range m.cards {
		c := &m.cards[i]
		if sig.Lang != "" && c.PrintingLang != sig.Lang {
			continue
		}
		if strict && sig.SetCode != "" && !sameKey(c.SetID, sig.SetCode) {
			continue
		}
		if !sameNumber(c.Number, sig.LocalID) {
			continue
		}
		if !nameInTitle(c, normTitle) {
			continue
		}

		inFamily := family != "" && strings.HasPrefix(textnorm.Normalize(c.SetID), family)
		switch {
		case best == nil:
			best, bestFamily = c, inFamily
		case !strict && inFamily && !bestFamily:
			best, bestFamily = c, inFamily
		case inFamily == bestFamily && preferImage(c, best):
			best = c
		}
	}
	if best == nil {
		return Result{}
	}

	conf, cap, mode := 0.86, 1.0, ModeStrict
	langBonus := 0.04
	if !strict {
		conf, cap, mode = 0.80, 0.90, ModeLoose
		langBonus = 0.05
	}
	if sig.Lang != "" {
		conf += langBonus
	}
	if conf > cap {
		conf = cap
	}
	return Result{Card: best, Confidence: conf, Mode: mode}
}

// nameInTitle checks normalized containment of the display or English
// name inside the title.
func nameInTitle(c *model.Card, normTitle string) bool {
	if n := textnorm.Normalize(c.Name); n != "" && strings.Contains(normTitle, n) {
		return true
	}
	if n := textnorm.Normalize(c.NameEn); n != "" && strings.Contains(normTitle, n) {
		return true
	}
	return false
}

// sameKey compares identifiers ignoring case and diacritics.
func sameKey(a, b string) bool {
	return textnorm.Normalize(a) == textnorm.Normalize(b)
}

// sameNumber compares local card numbers ignoring leading zeros and case,
// so catalog "6" matches title "006".
func sameNumber(a, b string) bool {
	return trimNumber(a) == trimNumber(b)
}

func trimNumber(s string) string {
	s = strings.TrimPrefix(textnorm.Normalize(s), "#")
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

func preferImage(cand, cur *model.Card) bool {
	return cand.ImageLarge != "" && cur.ImageLarge == ""
}
