package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// StrategyConfig is the acquisition strategy: budget, price tiers,
// diversification and reserve rules. It is loaded once per session.
type StrategyConfig struct {
	Currency        string                `yaml:"currency" mapstructure:"currency"`
	DailyBudget     BudgetConfig          `yaml:"daily_budget" mapstructure:"daily_budget"`
	Tiers           TierConfig            `yaml:"tiers" mapstructure:"tiers"`
	Diversification DiversificationConfig `yaml:"diversification" mapstructure:"diversification"`
	Allocation      AllocationConfig      `yaml:"allocation" mapstructure:"allocation"`
	Reserve         ReserveConfig         `yaml:"reserve" mapstructure:"reserve"`
}

// BudgetConfig bounds the spend of one acquisition.
type BudgetConfig struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// TierConfig maps price bands to the consensus confidence a candidate must
// exceed: below ExperimentalCeiling, below ConvictionCeiling, and above.
type TierConfig struct {
	ExperimentalCeiling    float64 `yaml:"experimental_ceiling" mapstructure:"experimental_ceiling"`
	ConvictionCeiling      float64 `yaml:"conviction_ceiling" mapstructure:"conviction_ceiling"`
	ExperimentalConfidence float64 `yaml:"experimental_confidence" mapstructure:"experimental_confidence"`
	ConvictionConfidence   float64 `yaml:"conviction_confidence" mapstructure:"conviction_confidence"`
	BlueChipConfidence     float64 `yaml:"blue_chip_confidence" mapstructure:"blue_chip_confidence"`
}

// DiversificationConfig caps acquisitions per artist over a trailing window.
type DiversificationConfig struct {
	WindowDays   int `yaml:"window_days" mapstructure:"window_days"`
	MaxPerArtist int `yaml:"max_per_artist" mapstructure:"max_per_artist"`
}

// AllocationConfig caps the share of capital one category may absorb over the
// diversification window. Categories not listed use Default.
type AllocationConfig struct {
	Default    float64            `yaml:"default" mapstructure:"default"`
	Categories map[string]float64 `yaml:"categories" mapstructure:"categories"`
}

// Ceiling returns the allocation ceiling for category.
func (a AllocationConfig) Ceiling(category string) float64 {
	if v, ok := a.Categories[strings.ToLower(category)]; ok {
		return v
	}
	return a.Default
}

// ReserveConfig keeps MinRatio of Capital unspent over the window.
type ReserveConfig struct {
	Capital  float64 `yaml:"capital" mapstructure:"capital"`
	MinRatio float64 `yaml:"min_ratio" mapstructure:"min_ratio"`
}

func setStrategyDefaults(v *viper.Viper) {
	d := DefaultStrategy()
	v.SetDefault("strategy.currency", d.Currency)
	v.SetDefault("strategy.daily_budget.min", d.DailyBudget.Min)
	v.SetDefault("strategy.daily_budget.max", d.DailyBudget.Max)
	v.SetDefault("strategy.tiers.experimental_ceiling", d.Tiers.ExperimentalCeiling)
	v.SetDefault("strategy.tiers.conviction_ceiling", d.Tiers.ConvictionCeiling)
	v.SetDefault("strategy.tiers.experimental_confidence", d.Tiers.ExperimentalConfidence)
	v.SetDefault("strategy.tiers.conviction_confidence", d.Tiers.ConvictionConfidence)
	v.SetDefault("strategy.tiers.blue_chip_confidence", d.Tiers.BlueChipConfidence)
	v.SetDefault("strategy.diversification.window_days", d.Diversification.WindowDays)
	v.SetDefault("strategy.diversification.max_per_artist", d.Diversification.MaxPerArtist)
	v.SetDefault("strategy.allocation.default", d.Allocation.Default)
	v.SetDefault("strategy.allocation.categories", d.Allocation.Categories)
	v.SetDefault("strategy.reserve.capital", d.Reserve.Capital)
	v.SetDefault("strategy.reserve.min_ratio", d.Reserve.MinRatio)
}

// DefaultStrategy returns the built-in strategy.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Currency:    "ETH",
		DailyBudget: BudgetConfig{Min: 0.1, Max: 25},
		Tiers: TierConfig{
			ExperimentalCeiling:    5,
			ConvictionCeiling:      20,
			ExperimentalConfidence: 0.6,
			ConvictionConfidence:   0.75,
			BlueChipConfidence:     0.9,
		},
		Diversification: DiversificationConfig{WindowDays: 30, MaxPerArtist: 3},
		Allocation: AllocationConfig{
			Default: 0.4,
			Categories: map[string]float64{
				"generative":  0.5,
				"photography": 0.3,
			},
		},
		Reserve: ReserveConfig{Capital: 200, MinRatio: 0.2},
	}
}

// Validate rejects strategies the filter cannot apply consistently. Tier
// ceilings and confidence floors must both be non-decreasing so a higher
// price never lowers the bar.
func (s StrategyConfig) Validate() error {
	var problems []string
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("strategy.%s must be between 0 and 1", name))
		}
	}

	if s.Currency == "" {
		problems = append(problems, "strategy.currency is required")
	}
	if s.DailyBudget.Max <= 0 {
		problems = append(problems, "strategy.daily_budget.max must be > 0")
	}
	if s.DailyBudget.Min < 0 || s.DailyBudget.Min > s.DailyBudget.Max {
		problems = append(problems, "strategy.daily_budget.min must be between 0 and max")
	}

	t := s.Tiers
	if t.ExperimentalCeiling <= 0 || t.ConvictionCeiling < t.ExperimentalCeiling {
		problems = append(problems, "strategy.tiers ceilings must satisfy 0 < experimental_ceiling <= conviction_ceiling")
	}
	unit("tiers.experimental_confidence", t.ExperimentalConfidence)
	unit("tiers.conviction_confidence", t.ConvictionConfidence)
	unit("tiers.blue_chip_confidence", t.BlueChipConfidence)
	if t.ExperimentalConfidence > t.ConvictionConfidence || t.ConvictionConfidence > t.BlueChipConfidence {
		problems = append(problems, "strategy.tiers confidence floors must be non-decreasing with price")
	}

	if s.Diversification.WindowDays <= 0 {
		problems = append(problems, "strategy.diversification.window_days must be > 0")
	}
	if s.Diversification.MaxPerArtist < 1 {
		problems = append(problems, "strategy.diversification.max_per_artist must be >= 1")
	}

	unit("allocation.default", s.Allocation.Default)
	cats := make([]string, 0, len(s.Allocation.Categories))
	for k := range s.Allocation.Categories {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	for _, k := range cats {
		unit("allocation.categories."+k, s.Allocation.Categories[k])
	}

	if s.Reserve.Capital <= 0 {
		problems = append(problems, "strategy.reserve.capital must be > 0")
	}
	unit("reserve.min_ratio", s.Reserve.MinRatio)

	if len(problems) > 0 {
		return eris.New(strings.Join(problems, "; "))
	}
	return nil
}
