// Package consensus merges the archetype decisions for one candidate into a
// single confidence-weighted verdict.
package consensus

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

const (
	// TieEpsilon is the mass difference under which two labels tie.
	TieEpsilon = 1e-9

	MaxReasons = 5
	MaxRisks   = 3

	ImmediateConviction  = 0.9
	WithinWeekConviction = 0.8

	// PriceMarkup scales the price target linearly with conviction.
	PriceMarkup = 0.5
)

// Aggregate merges decisions for a candidate priced at price. The result is a
// pure function of its inputs: the same decisions in the same order always
// produce the same consensus.
func Aggregate(price decimal.Decimal, decisions []model.ArchetypeDecision) model.ConsensusDecision {
	valid := make([]model.ArchetypeDecision, 0, len(decisions))
	for _, d := range decisions {
		if !d.Decision.Valid() {
			zap.L().Warn("consensus: ignoring unknown decision label",
				zap.String("policy", d.Policy),
				zap.String("decision", string(d.Decision)),
			)
			continue
		}
		valid = append(valid, d)
	}

	if len(valid) == 0 {
		return model.ConsensusDecision{
			Decision:    model.DecisionPass,
			Confidence:  0,
			Reasoning:   []string{"No archetype decisions to aggregate"},
			RiskFactors: []string{},
			Urgency:     model.UrgencyNoRush,
			Votes:       map[model.Decision]float64{},
		}
	}

	votes := make(map[model.Decision]float64, len(model.DecisionOrder))
	confidences := make([]float64, 0, len(valid))
	var reasons, risks []string
	anyBuy := false
	for _, d := range valid {
		votes[d.Decision] += d.Confidence
		confidences = append(confidences, d.Confidence)
		reasons = append(reasons, d.Reasoning...)
		risks = append(risks, d.RiskFactors...)
		if d.Decision == model.DecisionBuy {
			anyBuy = true
		}
	}

	winner := Winner(votes)
	confidence := mean(confidences)

	out := model.ConsensusDecision{
		Decision:     winner,
		Confidence:   confidence,
		Reasoning:    Dedupe(reasons, MaxReasons),
		RiskFactors:  Dedupe(risks, MaxRisks),
		Urgency:      urgency(winner, Conviction(valid, winner)),
		Votes:        votes,
		Contributors: len(valid),
	}
	if anyBuy {
		target := PriceTarget(price, confidence)
		out.PriceTarget = &target
	}
	return out
}

// Winner returns the label with the highest summed confidence. Labels within
// TieEpsilon of each other resolve to the earlier one in buy, watch, pass,
// sell order.
func Winner(votes map[model.Decision]float64) model.Decision {
	best := model.DecisionPass
	bestMass := math.Inf(-1)
	for _, label := range model.DecisionOrder {
		mass, ok := votes[label]
		if !ok {
			continue
		}
		if mass > bestMass+TieEpsilon {
			best, bestMass = label, mass
		}
	}
	return best
}

// Conviction is the mean confidence of the decisions that voted for label.
func Conviction(decisions []model.ArchetypeDecision, label model.Decision) float64 {
	var confs []float64
	for _, d := range decisions {
		if d.Decision == label {
			confs = append(confs, d.Confidence)
		}
	}
	return mean(confs)
}

func urgency(winner model.Decision, conviction float64) model.Urgency {
	switch {
	case winner == model.DecisionBuy && conviction > ImmediateConviction:
		return model.UrgencyImmediate
	case winner == model.DecisionBuy && conviction > WithinWeekConviction:
		return model.UrgencyWithinWeek
	case winner == model.DecisionWatch:
		return model.UrgencyMonitor
	default:
		return model.UrgencyNoRush
	}
}

// PriceTarget is price * (1 + confidence*PriceMarkup), rounded to 4 places.
func PriceTarget(price decimal.Decimal, confidence float64) decimal.Decimal {
	markup := decimal.NewFromFloat(confidence).Mul(decimal.NewFromFloat(PriceMarkup))
	return price.Mul(decimal.NewFromInt(1).Add(markup)).Round(4)
}

// Dedupe keeps the first occurrence of each string, in order, up to limit.
func Dedupe(items []string, limit int) []string {
	out := make([]string, 0, min(len(items), limit))
	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if len(out) == limit {
			break
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return m
}
