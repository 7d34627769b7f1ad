package archetype

import (
	"github.com/sells-group/curator-cli/internal/model"
)

// Evaluate applies policy to candidate using DefaultRules.
func Evaluate(c model.ArtworkCandidate, p model.ArchetypePolicy) model.ArchetypeDecision {
	return EvaluateWith(DefaultRules, c, p)
}

// EvaluateWith applies rules in order. It has no side effects and the same
// inputs always produce the same decision.
func EvaluateWith(rules []Rule, c model.ArtworkCandidate, p model.ArchetypePolicy) model.ArchetypeDecision {
	in := Input{Candidate: c, Policy: p}
	acc := &Accumulator{Decision: model.DecisionPass, Urgency: model.UrgencyNoRush}
	for _, r := range rules {
		if acc.Settled && !r.Always {
			continue
		}
		r.Apply(acc, in)
	}
	return acc.Result(p.Name)
}
