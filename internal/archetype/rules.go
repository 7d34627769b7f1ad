package archetype

import (
	"fmt"
	"strings"

	"github.com/sells-group/curator-cli/internal/model"
)

// Evaluation thresholds.
const (
	AestheticGate       = 0.3
	GateConfidence      = 0.9
	StrongMarket        = 0.8
	WeakMarket          = 0.3
	HighCultural        = 0.7
	TechnicalPresent    = 0.6
	MomentumBonus       = 0.3
	CulturalBonus       = 0.2
	TechnicalBonus      = 0.15
	FavoredBandBonus    = 0.2
	BlueChipPenalty     = 0.1
	BuyConfidence       = 0.75
	BuyFit              = 0.6
	WatchConfidence     = 0.5
	ImmediateConfidence = 0.9
	VetoConfidence      = 0.9
	MinimumSignalMean   = 0.4
	DefaultKeywordBonus = 0.05
)

var (
	authenticityTerms = []string{"authentic", "provenance", "plagiarism", "forgery"}
	minimumTerms      = []string{"confidence", "minimum"}
)

// Rule is one named, independently testable evaluation step.
type Rule struct {
	Name string
	// Always rules run even after the aesthetic gate settles the decision.
	Always bool
	Apply  func(acc *Accumulator, in Input)
}

// DefaultRules is the evaluation order. The order is part of the contract:
// fit before gate, evidence before decide, veto last.
var DefaultRules = []Rule{
	{Name: "aesthetic_fit", Always: true, Apply: aestheticFit},
	{Name: "aesthetic_gate", Apply: aestheticGate},
	{Name: "market_momentum", Apply: marketMomentum},
	{Name: "cultural_significance", Apply: culturalSignificance},
	{Name: "technical_innovation", Apply: technicalInnovation},
	{Name: "weak_market", Apply: weakMarket},
	{Name: "price_band", Apply: priceBand},
	{Name: "decide", Apply: decide},
	{Name: "veto", Always: true, Apply: veto},
}

// RuleByName returns the default rule with the given name.
func RuleByName(name string) (Rule, bool) {
	for _, r := range DefaultRules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// KeywordHits counts the policy's aesthetic keywords present in its
// philosophy text.
func KeywordHits(p model.ArchetypePolicy) int {
	text := strings.ToLower(p.Philosophy)
	hits := 0
	for _, kw := range p.AestheticKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

func aestheticFit(acc *Accumulator, in Input) {
	bonus := in.Policy.KeywordBonus
	fit := in.Candidate.Signals.Aesthetic + bonus*float64(KeywordHits(in.Policy))
	if fit > 1 {
		fit = 1
	}
	acc.Fit = fit
}

func aestheticGate(acc *Accumulator, _ Input) {
	if acc.Fit >= AestheticGate {
		return
	}
	acc.Settle(model.DecisionPass, GateConfidence, model.UrgencyNoRush)
	acc.Reasoning = append(acc.Reasoning,
		"Poor aesthetic fit ("+pct(acc.Fit)+")",
		"Does not meet aesthetic criteria",
	)
	acc.Risk("Aesthetic mismatch")
	acc.Settled = true
}

func marketMomentum(acc *Accumulator, in Input) {
	if in.Candidate.Signals.Market > StrongMarket {
		acc.Add(MomentumBonus, "Strong market momentum")
	}
}

func culturalSignificance(acc *Accumulator, in Input) {
	if in.Candidate.Signals.Cultural > HighCultural {
		acc.Add(CulturalBonus, "High cultural significance")
	}
}

func technicalInnovation(acc *Accumulator, in Input) {
	if in.Candidate.Signals.Technical > TechnicalPresent {
		acc.Add(TechnicalBonus, "Technical innovation present")
	}
}

func weakMarket(acc *Accumulator, in Input) {
	if in.Candidate.Signals.Market < WeakMarket {
		acc.Risk("Weak market signals")
	}
}

func priceBand(acc *Accumulator, in Input) {
	price := in.Candidate.PriceAmount.InexactFloat64()
	if band, ok := in.Policy.BandFor(price); ok && band.Favored {
		acc.Add(FavoredBandBonus, fmt.Sprintf("Price aligns with %s band", band.Name))
	}
	if ceiling := in.Policy.BlueChipCeiling; ceiling > 0 && price > ceiling {
		acc.Add(-BlueChipPenalty, "")
		acc.Risk(fmt.Sprintf("Price above blue-chip ceiling (%s > %g)", in.Candidate.PriceAmount.String(), ceiling))
	}
}

func decide(acc *Accumulator, _ Input) {
	conf := clamp(acc.Confidence)
	switch {
	case conf > BuyConfidence && acc.Fit > BuyFit:
		u := model.UrgencyWithinWeek
		if conf > ImmediateConfidence {
			u = model.UrgencyImmediate
		}
		acc.Settle(model.DecisionBuy, conf, u)
	case conf > WatchConfidence:
		acc.Settle(model.DecisionWatch, conf, model.UrgencyMonitor)
	default:
		acc.Settle(model.DecisionPass, conf, model.UrgencyNoRush)
		acc.Reasoning = append(acc.Reasoning, "Insufficient conviction ("+pct(conf)+")")
	}
}

// mentions returns the first non-negotiable containing any of terms.
func mentions(nonNegotiables []string, terms []string) (string, bool) {
	for _, n := range nonNegotiables {
		lower := strings.ToLower(n)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return n, true
			}
		}
	}
	return "", false
}

func veto(acc *Accumulator, in Input) {
	var reasons []string
	if !in.Candidate.HasProvenance() {
		if rule, ok := mentions(in.Policy.NonNegotiables, authenticityTerms); ok {
			reasons = append(reasons, fmt.Sprintf("Veto: provenance unverifiable (%s)", rule))
		}
	}
	if mean := in.Candidate.Signals.Mean(); mean < MinimumSignalMean {
		if rule, ok := mentions(in.Policy.NonNegotiables, minimumTerms); ok {
			reasons = append(reasons, fmt.Sprintf("Veto: signal mean %s below minimum (%s)", pct(mean), rule))
		}
	}
	if len(reasons) == 0 {
		return
	}

	acc.Settle(model.DecisionPass, VetoConfidence, model.UrgencyNoRush)
	acc.Vetoed = true
	acc.Reasoning = append(reasons, acc.Reasoning...)
}
