package model

import (
	"github.com/shopspring/decimal"
)

// Decision is the stance a single archetype (or the consensus) takes on a candidate.
type Decision string

const (
	DecisionBuy   Decision = "buy"
	DecisionWatch Decision = "watch"
	DecisionPass  Decision = "pass"
	DecisionSell  Decision = "sell"
)

// DecisionOrder is the fixed tie-break order, strongest first.
var DecisionOrder = []Decision{DecisionBuy, DecisionWatch, DecisionPass, DecisionSell}

// Priority returns the tie-break rank of d; lower wins. Unknown labels rank last.
func (d Decision) Priority() int {
	for i, label := range DecisionOrder {
		if label == d {
			return i
		}
	}
	return len(DecisionOrder)
}

// Valid reports whether d is one of the four known labels.
func (d Decision) Valid() bool {
	return d.Priority() < len(DecisionOrder)
}

// Urgency is a coarse recommendation of how quickly to act on a buy signal.
type Urgency string

const (
	UrgencyImmediate  Urgency = "immediate"
	UrgencyWithinWeek Urgency = "within_week"
	UrgencyMonitor    Urgency = "monitor"
	UrgencyNoRush     Urgency = "no_rush"
)

// ArchetypeDecision is the output of one policy applied to one candidate.
type ArchetypeDecision struct {
	Policy       string   `json:"policy"`
	Decision     Decision `json:"decision"`
	Confidence   float64  `json:"confidence"`
	Reasoning    []string `json:"reasoning"`
	RiskFactors  []string `json:"risk_factors"`
	Urgency      Urgency  `json:"urgency"`
	AestheticFit float64  `json:"aesthetic_fit"`
	Vetoed       bool     `json:"vetoed,omitempty"`
}

// Abstention records a policy that produced no decision for a candidate.
// It is not a vote.
type Abstention struct {
	Policy string `json:"policy"`
	Reason string `json:"reason"`
}

// ConsensusDecision merges every responding archetype decision for a candidate.
type ConsensusDecision struct {
	Decision     Decision             `json:"decision"`
	Confidence   float64              `json:"confidence"`
	Reasoning    []string             `json:"reasoning"`
	RiskFactors  []string             `json:"risk_factors"`
	Urgency      Urgency              `json:"urgency"`
	PriceTarget  *decimal.Decimal     `json:"price_target,omitempty"`
	Votes        map[Decision]float64 `json:"votes,omitempty"`
	Contributors int                  `json:"contributors"`
}

// Violation is one failed risk rule, with a machine-readable rule code.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// Rejection lists every rule a candidate failed at filter time.
type Rejection struct {
	CandidateID string      `json:"candidate_id"`
	Violations  []Violation `json:"violations"`
}

// Rules returns the rule codes of the rejection in order.
func (r Rejection) Rules() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Rule)
	}
	return out
}

// CandidateEvaluation is the replayable trail for one candidate in a session.
type CandidateEvaluation struct {
	Candidate   ArtworkCandidate    `json:"candidate"`
	Decisions   []ArchetypeDecision `json:"decisions"`
	Abstentions []Abstention        `json:"abstentions,omitempty"`
	Consensus   *ConsensusDecision  `json:"consensus,omitempty"`
	Rejection   *Rejection          `json:"rejection,omitempty"`
}

// Aggregated reports whether at least one policy responded.
func (e CandidateEvaluation) Aggregated() bool {
	return e.Consensus != nil
}
