package archetype

import (
	"context"

	"github.com/sells-group/curator-cli/internal/model"
)

// Scorer produces one policy's decision for one candidate. A returned error
// means the policy abstains; implementations never guess a decision.
type Scorer interface {
	Score(ctx context.Context, c model.ArtworkCandidate, p model.ArchetypePolicy) (*model.ArchetypeDecision, error)
}

// RuleScorer scores with the deterministic rule set alone.
type RuleScorer struct{}

// Score implements Scorer.
func (RuleScorer) Score(ctx context.Context, c model.ArtworkCandidate, p model.ArchetypePolicy) (*model.ArchetypeDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := Evaluate(c, p)
	return &d, nil
}
