// Package archetype applies one archetype policy to one candidate. Evaluation
// is a pure function: an Accumulator is threaded through an ordered list of
// named rules, each of which may add confidence, reasons or risks.
package archetype

import (
	"github.com/sells-group/curator-cli/internal/model"
)

// Input is what every rule sees. Rules never consult the ledger or other
// policies' decisions.
type Input struct {
	Candidate model.ArtworkCandidate
	Policy    model.ArchetypePolicy
}

// Accumulator carries the running state of one evaluation.
type Accumulator struct {
	Fit        float64
	Confidence float64
	Decision   model.Decision
	Urgency    model.Urgency
	Reasoning  []string
	Risks      []string
	Vetoed     bool

	// Settled is set by the aesthetic gate. Evidence rules are skipped once
	// it is set; rules marked Always still run.
	Settled bool
}

// Add moves confidence by delta and records why.
func (a *Accumulator) Add(delta float64, reason string) {
	a.Confidence += delta
	if reason != "" {
		a.Reasoning = append(a.Reasoning, reason)
	}
}

// Risk records a risk factor without touching confidence.
func (a *Accumulator) Risk(risk string) {
	a.Risks = append(a.Risks, risk)
}

// Settle fixes the decision and confidence.
func (a *Accumulator) Settle(d model.Decision, confidence float64, u model.Urgency) {
	a.Decision = d
	a.Confidence = confidence
	a.Urgency = u
}

// Result converts the accumulator into a decision for policy.
func (a *Accumulator) Result(policy string) model.ArchetypeDecision {
	reasoning := append([]string(nil), a.Reasoning...)
	risks := append([]string{}, a.Risks...)
	return model.ArchetypeDecision{
		Policy:       policy,
		Decision:     a.Decision,
		Confidence:   clamp(a.Confidence),
		Reasoning:    reasoning,
		RiskFactors:  risks,
		Urgency:      a.Urgency,
		AestheticFit: a.Fit,
		Vetoed:       a.Vetoed,
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
