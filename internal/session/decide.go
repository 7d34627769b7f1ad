package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/risk"
)

// ReasonCancelled is the reasoning of a pass forced by cancellation.
const ReasonCancelled = "cancelled"

// decide turns the ranked survivors into one outcome. Only the top survivor
// can be acted on; the next ones are kept as alternatives for audit.
func (r *Runner) decide(ctx context.Context, ds *model.DailySession, survivors []risk.Ranked, log *zap.Logger) model.Outcome {
	if ctx.Err() != nil {
		return model.PassOutcome{Reasoning: ReasonCancelled}
	}
	if len(survivors) == 0 {
		return model.PassOutcome{Reasoning: fmt.Sprintf(
			"No candidate survived risk filtering (%d rejected)", ds.CandidatesEvaluated)}
	}

	top := survivors[0]
	alternatives := r.alternatives(survivors[1:])
	c, cons := top.Candidate, top.Consensus

	switch cons.Decision {
	case model.DecisionBuy:
		if c.PriceAmount.GreaterThan(r.deps.Strategy.DailyMax) {
			return model.PassOutcome{
				Reasoning: fmt.Sprintf("Top candidate %s costs %s, above the daily budget of %s",
					describe(c), c.PriceAmount, r.deps.Strategy.DailyMax),
				Alternatives: alternatives,
			}
		}
		taken, err := r.deps.Ledger.HasEntryOn(ctx, ds.Date)
		if errors.Is(err, context.Canceled) {
			return model.PassOutcome{Reasoning: ReasonCancelled, Alternatives: alternatives}
		}
		if err != nil {
			log.Error("session: daily cap check failed", zap.Error(err))
			return model.PassOutcome{
				Reasoning:    "Ledger unavailable for the daily acquisition check: " + err.Error(),
				Alternatives: alternatives,
			}
		}
		if taken {
			return model.PassOutcome{
				Reasoning: fmt.Sprintf("An acquisition is already recorded for %s; %s deferred",
					ds.Date.Format("2006-01-02"), describe(c)),
				Alternatives: alternatives,
			}
		}
		return model.AcquireOutcome{
			Target:          c,
			Consensus:       cons,
			BudgetAllocated: c.PriceAmount,
			Reasoning:       explain("Acquire", c, cons),
			Alternatives:    alternatives,
		}
	case model.DecisionWatch:
		return model.WaitOutcome{
			Target:       c,
			Consensus:    cons,
			Reasoning:    explain("Wait on", c, cons),
			Alternatives: alternatives,
		}
	default:
		return model.PassOutcome{
			Reasoning:    explain("Pass on", c, cons),
			Alternatives: alternatives,
		}
	}
}

func (r *Runner) alternatives(rest []risk.Ranked) []model.Alternative {
	n := min(len(rest), r.opts.MaxAlternatives)
	out := make([]model.Alternative, 0, n)
	for _, s := range rest[:n] {
		out = append(out, model.Alternative{
			Candidate:  s.Candidate,
			Decision:   s.Consensus.Decision,
			Confidence: s.Consensus.Confidence,
		})
	}
	return out
}

func describe(c model.ArtworkCandidate) string {
	if c.Creator == "" {
		return fmt.Sprintf("%q", c.Title)
	}
	return fmt.Sprintf("%q by %s", c.Title, c.Creator)
}

func explain(verb string, c model.ArtworkCandidate, cons model.ConsensusDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %s %s: consensus %s at %.0f%% confidence from %d archetypes, urgency %s",
		verb, describe(c), c.PriceAmount, c.PriceCurrency,
		cons.Decision, cons.Confidence*100, cons.Contributors, cons.Urgency)
	if len(cons.Reasoning) > 0 {
		b.WriteString(". ")
		b.WriteString(strings.Join(cons.Reasoning, "; "))
	}
	if len(cons.RiskFactors) > 0 {
		b.WriteString(". Risks: ")
		b.WriteString(strings.Join(cons.RiskFactors, "; "))
	}
	return b.String()
}
