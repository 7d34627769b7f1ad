package archetype

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/curator-cli/internal/model"
)

// DefaultPolicies returns the built-in archetypes.
func DefaultPolicies() []model.ArchetypePolicy {
	return []model.ArchetypePolicy{
		{
			Name:              "aggressive",
			Philosophy:        "Back technical innovation early and ride momentum; the future belongs to new mediums.",
			AestheticKeywords: []string{"innovation", "future", "momentum"},
			KeywordBonus:      DefaultKeywordBonus,
			PositionBands: []model.PositionBand{
				{Name: "experimental", MaxPrice: 5, Favored: true},
				{Name: "conviction", MaxPrice: 20},
				{Name: "blue-chip"},
			},
			BlueChipCeiling: 50,
			NonNegotiables:  []string{"Never buy work with suspected plagiarism"},
		},
		{
			Name:              "connoisseur",
			Philosophy:        "Aesthetic quality and craft come first; cultural resonance outweighs price action.",
			AestheticKeywords: []string{"aesthetic", "craft", "cultural"},
			KeywordBonus:      DefaultKeywordBonus,
			PositionBands: []model.PositionBand{
				{Name: "experimental", MaxPrice: 5},
				{Name: "conviction", MaxPrice: 20, Favored: true},
				{Name: "blue-chip"},
			},
			BlueChipCeiling: 40,
			NonNegotiables: []string{
				"Authenticity must be verifiable through provenance",
				"Minimum confidence across all signals",
			},
		},
		{
			Name:              "cultural-steward",
			Philosophy:        "Preserve culturally significant work so the future of the medium remembers it.",
			AestheticKeywords: []string{"cultural", "future", "preserve"},
			KeywordBonus:      DefaultKeywordBonus,
			PositionBands: []model.PositionBand{
				{Name: "experimental", MaxPrice: 5, Favored: true},
				{Name: "conviction", MaxPrice: 20, Favored: true},
				{Name: "blue-chip"},
			},
			BlueChipCeiling: 30,
			NonNegotiables:  []string{"No forgery or unverifiable provenance"},
		},
		{
			Name:              "value-hunter",
			Philosophy:        "Find undervalued work before the market does; price discipline is everything.",
			AestheticKeywords: []string{"undervalued", "price", "discipline"},
			KeywordBonus:      DefaultKeywordBonus,
			PositionBands: []model.PositionBand{
				{Name: "experimental", MaxPrice: 2, Favored: true},
				{Name: "conviction", MaxPrice: 10},
				{Name: "blue-chip"},
			},
			BlueChipCeiling: 15,
			NonNegotiables:  []string{"Minimum signal confidence of 40%"},
		},
	}
}

// policyDoc mirrors model.ArchetypePolicy so an omitted keyword_bonus can be
// told apart from an explicit zero.
type policyDoc struct {
	Name              string               `yaml:"name"`
	Philosophy        string               `yaml:"philosophy"`
	AestheticKeywords []string             `yaml:"aesthetic_keywords"`
	KeywordBonus      *float64             `yaml:"keyword_bonus"`
	PositionBands     []model.PositionBand `yaml:"position_bands"`
	BlueChipCeiling   float64              `yaml:"blue_chip_ceiling"`
	NonNegotiables    []string             `yaml:"non_negotiables"`
}

type policyFile struct {
	Policies []policyDoc `yaml:"policies"`
}

// LoadPolicies reads and validates a YAML policy file.
func LoadPolicies(path string) ([]model.ArchetypePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "archetype: read policies %s", path)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes and validates policy YAML.
func ParsePolicies(data []byte) ([]model.ArchetypePolicy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "archetype: decode policies")
	}

	out := make([]model.ArchetypePolicy, 0, len(f.Policies))
	for _, d := range f.Policies {
		bonus := DefaultKeywordBonus
		if d.KeywordBonus != nil {
			bonus = *d.KeywordBonus
		}
		out = append(out, model.ArchetypePolicy{
			Name:              strings.TrimSpace(d.Name),
			Philosophy:        d.Philosophy,
			AestheticKeywords: d.AestheticKeywords,
			KeywordBonus:      bonus,
			PositionBands:     d.PositionBands,
			BlueChipCeiling:   d.BlueChipCeiling,
			NonNegotiables:    d.NonNegotiables,
		})
	}

	if err := ValidatePolicies(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidatePolicies rejects policy sets that would make evaluation ambiguous.
func ValidatePolicies(policies []model.ArchetypePolicy) error {
	if len(policies) == 0 {
		return eris.New("archetype: at least one policy is required")
	}

	var problems []string
	seen := make(map[string]bool, len(policies))
	for i, p := range policies {
		if p.Name == "" {
			problems = append(problems, "policy "+strconv.Itoa(i)+" has no name")
			continue
		}
		if seen[p.Name] {
			problems = append(problems, "duplicate policy "+p.Name)
		}
		seen[p.Name] = true

		if p.KeywordBonus < 0 || p.KeywordBonus > 0.5 {
			problems = append(problems, p.Name+": keyword_bonus must be between 0 and 0.5")
		}
		if p.BlueChipCeiling < 0 {
			problems = append(problems, p.Name+": blue_chip_ceiling must be >= 0")
		}
		prev := 0.0
		for j, b := range p.PositionBands {
			last := j == len(p.PositionBands)-1
			switch {
			case b.MaxPrice < 0:
				problems = append(problems, p.Name+": band "+b.Name+" has a negative max_price")
			case b.MaxPrice == 0 && !last:
				problems = append(problems, p.Name+": only the last band may be unbounded")
			case b.MaxPrice != 0 && b.MaxPrice <= prev:
				problems = append(problems, p.Name+": bands must be sorted by ascending max_price")
			}
			prev = b.MaxPrice
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("archetype: invalid policies: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Select keeps the named policies in their original order. An empty names
// list keeps all of them.
func Select(policies []model.ArchetypePolicy, names []string) ([]model.ArchetypePolicy, error) {
	if len(names) == 0 {
		return policies, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []model.ArchetypePolicy
	for _, p := range policies {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for n := range want {
		return nil, eris.Errorf("archetype: unknown policy %q", n)
	}
	return out, nil
}
