package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/curator-cli/internal/consensus"
	"github.com/sells-group/curator-cli/internal/model"
)

// evaluate scores every candidate against every policy. Candidates run on a
// bounded pool; the policies of one candidate run in parallel. Cancelling
// ctx stops dispatching new candidates, while calls already in flight run to
// completion or to their own timeout.
func (r *Runner) evaluate(ctx context.Context, candidates []model.ArtworkCandidate, log *zap.Logger) []model.CandidateEvaluation {
	evals := make([]model.CandidateEvaluation, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.opts.MaxWorkers)
	dispatched := 0
	for i, c := range candidates {
		if ctx.Err() != nil {
			log.Info("session: evaluation cancelled",
				zap.Int("dispatched", dispatched),
				zap.Int("remaining", len(candidates)-dispatched),
			)
			break
		}
		dispatched++
		g.Go(func() error {
			evals[i] = r.evaluateCandidate(ctx, c, log)
			return nil
		})
	}
	_ = g.Wait()
	return evals[:dispatched]
}

type scored struct {
	decision *model.ArchetypeDecision
	err      error
}

func (r *Runner) evaluateCandidate(ctx context.Context, c model.ArtworkCandidate, log *zap.Logger) model.CandidateEvaluation {
	policies := r.deps.Policies
	results := make([]scored, len(policies))

	var wg sync.WaitGroup
	for i, p := range policies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.EvaluatorTimeout)
			defer cancel()
			results[i] = r.scoreWithin(callCtx, c, p)
		}()
	}
	wg.Wait()

	ev := model.CandidateEvaluation{Candidate: c}
	for i, res := range results {
		name := policies[i].Name
		if reason := abstainReason(res, r.opts.EvaluatorTimeout); reason != "" {
			log.Warn("session: archetype abstained",
				zap.String("candidate", c.ID),
				zap.String("policy", name),
				zap.String("reason", reason),
			)
			ev.Abstentions = append(ev.Abstentions, model.Abstention{Policy: name, Reason: reason})
			continue
		}
		d := *res.decision
		d.Policy = name
		ev.Decisions = append(ev.Decisions, d)
	}

	if len(ev.Decisions) == 0 {
		log.Warn("session: no decisions to aggregate", zap.String("candidate", c.ID))
		return ev
	}
	agg := consensus.Aggregate(c.PriceAmount, ev.Decisions)
	ev.Consensus = &agg
	log.Debug("session: candidate aggregated",
		zap.String("candidate", c.ID),
		zap.String("decision", string(agg.Decision)),
		zap.Float64("confidence", agg.Confidence),
		zap.Int("contributors", agg.Contributors),
	)
	return ev
}

// scoreWithin returns when the scorer does or when ctx expires, whichever is
// first. A scorer that ignores ctx is left to finish in the background.
func (r *Runner) scoreWithin(ctx context.Context, c model.ArtworkCandidate, p model.ArchetypePolicy) scored {
	ch := make(chan scored, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- scored{err: eris.Errorf("scorer panic: %v", rec)}
			}
		}()
		d, err := r.deps.Scorer.Score(ctx, c, p)
		ch <- scored{decision: d, err: err}
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return scored{err: ctx.Err()}
	}
}

func abstainReason(res scored, timeout time.Duration) string {
	switch {
	case res.err != nil && errors.Is(res.err, context.DeadlineExceeded):
		return fmt.Sprintf("timeout after %s", timeout)
	case res.err != nil:
		return "error: " + res.err.Error()
	case res.decision == nil:
		return "no decision returned"
	case !res.decision.Decision.Valid():
		return fmt.Sprintf("invalid decision label %q", res.decision.Decision)
	}
	return ""
}
