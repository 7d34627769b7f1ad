package model

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCategory is used for candidates the source did not categorize.
const DefaultCategory = "uncategorized"

// Signals holds the four normalized discovery scores, each in [0,1].
type Signals struct {
	Technical float64 `json:"technical" yaml:"technical"`
	Cultural  float64 `json:"cultural" yaml:"cultural"`
	Market    float64 `json:"market" yaml:"market"`
	Aesthetic float64 `json:"aesthetic" yaml:"aesthetic"`
}

// Mean returns the arithmetic mean of the four signals.
func (s Signals) Mean() float64 {
	return (s.Technical + s.Cultural + s.Market + s.Aesthetic) / 4
}

// Clamp returns a copy with every signal bounded to [0,1].
func (s Signals) Clamp() Signals {
	return Signals{
		Technical: clampUnit(s.Technical),
		Cultural:  clampUnit(s.Cultural),
		Market:    clampUnit(s.Market),
		Aesthetic: clampUnit(s.Aesthetic),
	}
}

// ArtworkCandidate is a discovered item offered for evaluation. It is
// read-only once the source has produced it.
type ArtworkCandidate struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Creator        string          `json:"creator"`
	Category       string          `json:"category,omitempty"`
	PriceAmount    decimal.Decimal `json:"price_amount"`
	PriceCurrency  string          `json:"price_currency"`
	SourcePlatform string          `json:"source_platform"`
	Signals        Signals         `json:"signals"`
	Provenance     []string        `json:"provenance"`
}

// ArtistID returns the normalized creator key used for ledger counts.
func (c ArtworkCandidate) ArtistID() string {
	return ArtistKey(c.Creator)
}

// CategoryOrDefault returns the candidate category, or DefaultCategory.
func (c ArtworkCandidate) CategoryOrDefault() string {
	cat := strings.ToLower(strings.TrimSpace(c.Category))
	if cat == "" {
		return DefaultCategory
	}
	return cat
}

// HasProvenance reports whether at least one non-blank provenance claim exists.
func (c ArtworkCandidate) HasProvenance() bool {
	for _, p := range c.Provenance {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// ArtistKey folds case and strips diacritics and surrounding whitespace so
// "Zoë Ko" and "zoe ko " count as the same artist.
func ArtistKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		stripped = strings.TrimSpace(name)
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
