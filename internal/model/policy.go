package model

// PositionBand is a named price range a policy sizes positions in. A band
// covers prices up to and including MaxPrice; MaxPrice of 0 means unbounded.
type PositionBand struct {
	Name     string  `json:"name" yaml:"name"`
	MaxPrice float64 `json:"max_price" yaml:"max_price"`
	Favored  bool    `json:"favored" yaml:"favored"`
}

// ArchetypePolicy is a named, independent decision strategy. Policies are
// loaded once at startup and passed by value into evaluation.
type ArchetypePolicy struct {
	Name              string         `json:"name" yaml:"name"`
	Philosophy        string         `json:"philosophy" yaml:"philosophy"`
	AestheticKeywords []string       `json:"aesthetic_keywords" yaml:"aesthetic_keywords"`
	KeywordBonus      float64        `json:"keyword_bonus" yaml:"keyword_bonus"`
	PositionBands     []PositionBand `json:"position_bands" yaml:"position_bands"`
	BlueChipCeiling   float64        `json:"blue_chip_ceiling" yaml:"blue_chip_ceiling"`
	NonNegotiables    []string       `json:"non_negotiables" yaml:"non_negotiables"`
}

// BandFor returns the first band whose ceiling covers price, if any.
func (p ArchetypePolicy) BandFor(price float64) (PositionBand, bool) {
	for _, b := range p.PositionBands {
		if b.MaxPrice == 0 || price <= b.MaxPrice {
			return b, true
		}
	}
	return PositionBand{}, false
}
