// Package titles extracts structured signals from raw marketplace listing
// titles: set code, local card number, printing language, grading bucket,
// price, and lot/bundle detection. All regexes compile once at init and
// every function is pure.
package titles

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/guarzo/pkmpricewatch/internal/model"
	"github.com/guarzo/pkmpricewatch/internal/textnorm"
)

var (
	lotRe = regexp.MustCompile(`\blot\b|\bbundle\b|\bplayset\b|\bchoose\b|\bseleziona\b|\b\d+\s*(?:cards|carte)\b`)

	// Go's RE2 has no lookahead; the currency marker is captured instead.
	eurRe = regexp.MustCompile(`(?i)(\d+,\d{1,2}|\d+)\s*(?:€|eur)`)

	jaTokenRe = regexp.MustCompile(`\bja\b`)
	enTokenRe = regexp.MustCompile(`\ben\b`)

	setCodeRe     = regexp.MustCompile(`\b(sv\d{1,2}[a-z]?|m[a-z]{1,3})\b`)
	setCodeOnlyRe = regexp.MustCompile(`(?i)^(sv\d{1,2}[a-z]?|m[a-z]{1,3})$`)

	fracRe  = regexp.MustCompile(`(\d{1,3})/\d{1,3}`)
	promoRe = regexp.MustCompile(`\b[A-Z]{1,4}\d{1,4}\b`)
	graadRe = regexp.MustCompile(`(?i)graad\s*\d{1,2}(?:[.,]5)?`)
	bareRe  = regexp.MustCompile(`\b#?\s*(\d{2,3})\b`)

	gradeRe = regexp.MustCompile(`graad\s*(\d{1,2})([.,]5)?`)
)

// Signals is everything the matcher reads off one title.
type Signals struct {
	SetCode string
	LocalID string
	Lang    model.Lang        // empty when no language token found
	Bucket  model.GradeBucket // empty when no grade token found
	IsLot   bool
}

// Parse runs every extractor over one raw title.
func Parse(raw string) Signals {
	bucket, _ := DetectGradingBucket(raw)
	return Signals{
		SetCode: ExtractSetCode(raw),
		LocalID: ExtractLocalID(raw),
		Lang:    DetectLanguage(raw),
		Bucket:  bucket,
		IsLot:   IsLikelyLot(raw),
	}
}

// IsLikelyLot reports whether the title describes a lot, bundle, or other
// multi-card listing that can never be matched to a single printing.
func IsLikelyLot(raw string) bool {
	return lotRe.MatchString(textnorm.Normalize(raw))
}

// ParseEurPrice finds a euro-denominated price in the text. Dots are
// treated as thousands separators and stripped before matching; the
// decimal comma converts to a dot.
func ParseEurPrice(raw string) (float64, bool) {
	text := strings.ReplaceAll(raw, ".", "")
	m := eurRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// DetectLanguage reads an explicit language token out of the title.
// Absence of a token returns the empty Lang, not a default.
func DetectLanguage(raw string) model.Lang {
	q := textnorm.NormalizeQuery(raw)
	if jaTokenRe.MatchString(q) {
		return model.LangJA
	}
	if enTokenRe.MatchString(q) {
		return model.LangEN
	}
	return ""
}

// ExtractSetCode returns the first set-code-shaped token, or "".
func ExtractSetCode(raw string) string {
	m := setCodeRe.FindStringSubmatch(textnorm.Normalize(raw))
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractLocalID pulls the local card number out of the raw title.
// Precedence: the numerator of a NNN/NNN fraction, then a promo/serial
// token (set codes excluded so "SV3" never masquerades as a number), then
// a bare 2-3 digit number once any grade token has been cut out.
func ExtractLocalID(raw string) string {
	if m := fracRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	for _, cand := range promoRe.FindAllString(raw, -1) {
		if setCodeOnlyRe.MatchString(cand) {
			continue
		}
		return cand
	}
	stripped := graadRe.ReplaceAllString(raw, " ")
	if m := bareRe.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	return ""
}

// DetectGradingBucket classifies the grade token, if any. found=false
// means no grade token at all (an ungraded listing); BucketUnknown means
// a grade token was present but outside the recognized tiers.
func DetectGradingBucket(raw string) (model.GradeBucket, bool) {
	m := gradeRe.FindStringSubmatch(textnorm.Normalize(raw))
	if m == nil {
		return "", false
	}
	grade, err := strconv.Atoi(m[1])
	if err != nil {
		return model.BucketUnknown, true
	}
	half := m[2] != ""

	switch {
	case grade == 7 && !half:
		return model.BucketGrade7, true
	case grade == 7 && half: // rounds down inside (7,8)
		return model.BucketGrade7, true
	case grade == 8 && !half:
		return model.BucketGrade8, true
	case grade == 8 && half: // rounds down inside (8,9)
		return model.BucketGrade8, true
	case grade == 9 && !half:
		return model.BucketGrade9, true
	case grade == 9 && half:
		return model.BucketGrade95, true
	case grade == 10 && !half:
		return model.BucketGrade10, true
	default:
		return model.BucketUnknown, true
	}
}
