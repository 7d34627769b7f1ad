package risk

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/curator-cli/internal/config"
)

// Tiers maps price to the consensus confidence a candidate must exceed.
type Tiers struct {
	ExperimentalCeiling decimal.Decimal
	ConvictionCeiling   decimal.Decimal
	Experimental        float64
	Conviction          float64
	BlueChip            float64
}

// RequiredConfidence returns the floor for price. With validated tiers the
// result never decreases as price rises.
func (t Tiers) RequiredConfidence(price decimal.Decimal) float64 {
	switch {
	case price.LessThan(t.ExperimentalCeiling):
		return t.Experimental
	case price.LessThan(t.ConvictionCeiling):
		return t.Conviction
	default:
		return t.BlueChip
	}
}

// Band names the tier price falls in.
func (t Tiers) Band(price decimal.Decimal) string {
	switch {
	case price.LessThan(t.ExperimentalCeiling):
		return "experimental"
	case price.LessThan(t.ConvictionCeiling):
		return "conviction"
	default:
		return "blue_chip"
	}
}

// Strategy is the decimal form of config.StrategyConfig the filter works with.
type Strategy struct {
	Currency        string
	DailyMin        decimal.Decimal
	DailyMax        decimal.Decimal
	Tiers           Tiers
	WindowDays      int
	MaxPerArtist    int
	Allocation      config.AllocationConfig
	Capital         decimal.Decimal
	MinReserveRatio decimal.Decimal
}

// FromConfig converts a validated strategy configuration.
func FromConfig(c config.StrategyConfig) Strategy {
	return Strategy{
		Currency: c.Currency,
		DailyMin: decimal.NewFromFloat(c.DailyBudget.Min),
		DailyMax: decimal.NewFromFloat(c.DailyBudget.Max),
		Tiers: Tiers{
			ExperimentalCeiling: decimal.NewFromFloat(c.Tiers.ExperimentalCeiling),
			ConvictionCeiling:   decimal.NewFromFloat(c.Tiers.ConvictionCeiling),
			Experimental:        c.Tiers.ExperimentalConfidence,
			Conviction:          c.Tiers.ConvictionConfidence,
			BlueChip:            c.Tiers.BlueChipConfidence,
		},
		WindowDays:      c.Diversification.WindowDays,
		MaxPerArtist:    c.Diversification.MaxPerArtist,
		Allocation:      c.Allocation,
		Capital:         decimal.NewFromFloat(c.Reserve.Capital),
		MinReserveRatio: decimal.NewFromFloat(c.Reserve.MinRatio),
	}
}
