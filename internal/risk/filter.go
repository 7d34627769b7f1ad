// Package risk prunes ranked consensus decisions against the acquisition
// strategy and the ledger history.
package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

// Rule codes recorded on violations.
const (
	RuleCurrencyMismatch   = "currency_mismatch"
	RuleConfidenceTier     = "confidence_tier"
	RuleDailyBudget        = "daily_budget"
	RuleArtistFrequency    = "artist_frequency"
	RuleCategoryAllocation = "category_allocation"
	RuleCashReserve        = "cash_reserve"
	RuleLedgerUnavailable  = "ledger_unavailable"
)

// LedgerReader is the read side of the acquisition ledger the filter needs.
type LedgerReader interface {
	CountByArtist(ctx context.Context, artistID string, w model.Window) (int, error)
	SumByCategory(ctx context.Context, category string, w model.Window) (decimal.Decimal, error)
	SumSpent(ctx context.Context, w model.Window) (decimal.Decimal, error)
}

// Ranked pairs a candidate with its consensus.
type Ranked struct {
	Candidate model.ArtworkCandidate
	Consensus model.ConsensusDecision
}

// RankByConfidence sorts by descending consensus confidence. Equal
// confidences keep candidate id order so ranking is reproducible.
func RankByConfidence(in []Ranked) []Ranked {
	out := make([]Ranked, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Consensus.Confidence, out[j].Consensus.Confidence
		if ci != cj {
			return ci > cj
		}
		return out[i].Candidate.ID < out[j].Candidate.ID
	})
	return out
}

// Filter applies the strategy rules. It holds no per-session state.
type Filter struct {
	strategy Strategy
	ledger   LedgerReader
}

// NewFilter creates a filter over strategy and ledger.
func NewFilter(strategy Strategy, ledger LedgerReader) *Filter {
	return &Filter{strategy: strategy, ledger: ledger}
}

// Apply returns the survivors in input order and a rejection for every
// candidate that failed at least one rule. Every rule runs for every
// candidate so a rejection lists all of its violations.
func (f *Filter) Apply(ctx context.Context, ranked []Ranked, asOf time.Time) ([]Ranked, []model.Rejection) {
	window := model.Window{AsOf: asOf, Days: f.strategy.WindowDays}

	spent, spentErr := f.ledger.SumSpent(ctx, window)

	var survivors []Ranked
	var rejections []model.Rejection
	for _, r := range ranked {
		violations := f.check(ctx, r, window, spent, spentErr)
		if len(violations) == 0 {
			survivors = append(survivors, r)
			continue
		}
		rej := model.Rejection{CandidateID: r.Candidate.ID, Violations: violations}
		zap.L().Info("risk: candidate rejected",
			zap.String("candidate", r.Candidate.ID),
			zap.Strings("rules", rej.Rules()),
		)
		rejections = append(rejections, rej)
	}
	return survivors, rejections
}

func (f *Filter) check(ctx context.Context, r Ranked, window model.Window, spent decimal.Decimal, spentErr error) []model.Violation {
	s := f.strategy
	c := r.Candidate
	price := c.PriceAmount
	var out []model.Violation
	add := func(rule, format string, args ...any) {
		out = append(out, model.Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	if c.PriceCurrency != s.Currency {
		add(RuleCurrencyMismatch, "priced in %q, strategy uses %q", c.PriceCurrency, s.Currency)
	}

	required := s.Tiers.RequiredConfidence(price)
	if !(r.Consensus.Confidence > required) {
		add(RuleConfidenceTier, "confidence %.3f does not exceed %.2f for %s tier",
			r.Consensus.Confidence, required, s.Tiers.Band(price))
	}

	if price.GreaterThan(s.DailyMax) {
		add(RuleDailyBudget, "price %s exceeds daily max %s", price, s.DailyMax)
	}

	var ledgerErrs []string

	count, err := f.ledger.CountByArtist(ctx, c.ArtistID(), window)
	if err != nil {
		ledgerErrs = append(ledgerErrs, "artist count: "+err.Error())
	} else if count >= s.MaxPerArtist {
		add(RuleArtistFrequency, "artist %q has %d acquisitions in %d days (max %d)",
			c.ArtistID(), count, window.Days, s.MaxPerArtist)
	}

	category := c.CategoryOrDefault()
	catSum, err := f.ledger.SumByCategory(ctx, category, window)
	if err != nil {
		ledgerErrs = append(ledgerErrs, "category sum: "+err.Error())
	} else if s.Capital.IsPositive() {
		share := catSum.Add(price).Div(s.Capital)
		ceiling := decimal.NewFromFloat(s.Allocation.Ceiling(category))
		if share.GreaterThan(ceiling) {
			add(RuleCategoryAllocation, "category %q would reach %s of capital (ceiling %s)",
				category, share.StringFixed(3), ceiling)
		}
	}

	if spentErr != nil {
		ledgerErrs = append(ledgerErrs, "spent sum: "+spentErr.Error())
	} else if s.Capital.IsPositive() {
		remaining := s.Capital.Sub(spent).Sub(price).Div(s.Capital)
		if remaining.LessThan(s.MinReserveRatio) {
			add(RuleCashReserve, "reserve would fall to %s of capital (minimum %s)",
				remaining.StringFixed(3), s.MinReserveRatio)
		}
	}

	for _, e := range ledgerErrs {
		add(RuleLedgerUnavailable, "%s", e)
	}
	return out
}
