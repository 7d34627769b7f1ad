// Package session runs one daily selection: scan, evaluate, filter, decide
// and record. A run always ends in a completed session with exactly one
// outcome.
package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/archetype"
	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/risk"
	"github.com/sells-group/curator-cli/internal/sink"
	"github.com/sells-group/curator-cli/internal/source"
	"github.com/sells-group/curator-cli/internal/store"
)

// MaxAlternatives caps the runner-ups kept on an outcome.
const MaxAlternatives = 3

// ErrSessionActive is returned when Run is called while another run on the
// same Runner is still in flight.
var ErrSessionActive = eris.New("session: a run is already in progress")

// Options tunes a run.
type Options struct {
	CandidateLimit   int
	MaxWorkers       int
	EvaluatorTimeout time.Duration
	MaxAlternatives  int
}

// OptionsFromConfig converts the session config section.
func OptionsFromConfig(c config.SessionConfig) Options {
	return Options{
		CandidateLimit:   c.CandidateLimit,
		MaxWorkers:       c.MaxWorkers,
		EvaluatorTimeout: time.Duration(c.EvaluatorTimeoutSecs) * time.Second,
		MaxAlternatives:  c.MaxAlternatives,
	}
}

func (o Options) normalized() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.EvaluatorTimeout <= 0 {
		o.EvaluatorTimeout = 20 * time.Second
	}
	if o.MaxAlternatives <= 0 || o.MaxAlternatives > MaxAlternatives {
		o.MaxAlternatives = MaxAlternatives
	}
	return o
}

// Deps are the collaborators of a Runner. Sessions and Sink are optional.
type Deps struct {
	Source   source.Source
	Scorer   archetype.Scorer
	Policies []model.ArchetypePolicy
	Strategy risk.Strategy
	Ledger   store.Ledger
	Sessions store.SessionStore
	Sink     sink.Sink
}

// Runner executes daily sessions. It allows one run at a time.
type Runner struct {
	deps   Deps
	opts   Options
	filter *risk.Filter

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithIDs overrides session id generation.
func WithIDs(newID func() string) Option {
	return func(r *Runner) { r.newID = newID }
}

// NewRunner validates deps and creates a Runner.
func NewRunner(deps Deps, opts Options, options ...Option) (*Runner, error) {
	switch {
	case deps.Source == nil:
		return nil, eris.New("session: source is required")
	case deps.Scorer == nil:
		return nil, eris.New("session: scorer is required")
	case deps.Ledger == nil:
		return nil, eris.New("session: ledger is required")
	case len(deps.Policies) == 0:
		return nil, eris.New("session: at least one archetype policy is required")
	}
	r := &Runner{
		deps:   deps,
		opts:   opts.normalized(),
		filter: risk.NewFilter(deps.Strategy, deps.Ledger),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// result is what the pipeline hands to the complete step.
type result struct {
	outcome model.Outcome
	ledger  model.LedgerStatus
	err     error
}

// Run executes one session. The only error is ErrSessionActive; every other
// failure is folded into the outcome of the returned session.
func (r *Runner) Run(ctx context.Context) (*model.DailySession, error) {
	if !r.mu.TryLock() {
		return nil, ErrSessionActive
	}
	defer r.mu.Unlock()

	start := time.Now()
	ds := model.NewDailySession(r.newID(), r.now())
	log := zap.L().With(zap.String("session_id", ds.ID))
	log.Info("session: started", zap.Time("date", ds.Date))

	res := r.guarded(ctx, ds, log)

	if err := ds.Complete(res.outcome, res.ledger, res.err, r.now()); err != nil {
		log.Error("session: complete failed", zap.Error(err))
	}

	report := ds.Report()
	log.Info("session: complete",
		zap.String("action", string(report.Outcome.Action)),
		zap.String("ledger_status", string(report.LedgerStatus)),
		zap.Int("candidates_seen", ds.CandidatesSeen),
		zap.Int("candidates_evaluated", ds.CandidatesEvaluated),
		zap.Int("candidates_surviving", ds.CandidatesSurvivingFilter),
		zap.Int("abstentions", ds.Abstentions),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	// Recording and publishing outlive a cancelled caller.
	bg := context.WithoutCancel(ctx)
	if r.deps.Sessions != nil {
		if err := r.deps.Sessions.SaveSession(bg, ds); err != nil {
			log.Error("session: save audit record failed", zap.Error(err))
		}
	}
	if r.deps.Sink != nil {
		if err := r.deps.Sink.Publish(bg, report); err != nil {
			log.Warn("session: sink publish failed", zap.Error(err))
		}
	}
	return ds, nil
}

// guarded runs the pipeline and turns a panic into a pass.
func (r *Runner) guarded(ctx context.Context, ds *model.DailySession, log *zap.Logger) (res result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("session: recovered panic",
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())),
			)
			res = result{
				outcome: model.PassOutcome{Reasoning: fmt.Sprintf("Session aborted by an internal error: %v", p)},
				ledger:  model.LedgerNotRequired,
			}
		}
	}()
	return r.pipeline(ctx, ds, log)
}

func (r *Runner) pipeline(ctx context.Context, ds *model.DailySession, log *zap.Logger) result {
	pass := func(reason string) result {
		return result{outcome: model.PassOutcome{Reasoning: reason}, ledger: model.LedgerNotRequired}
	}

	// scanning
	candidates, err := r.deps.Source.ListCandidates(ctx, r.opts.CandidateLimit)
	if err != nil {
		ds.SourceError = err.Error()
		log.Warn("session: candidate source failed", zap.Error(err), zap.Int("partial", len(candidates)))
	}
	ds.CandidatesSeen = len(candidates)
	candidates = dedupe(candidates, log)
	if ctx.Err() != nil {
		return pass(ReasonCancelled)
	}
	if len(candidates) == 0 {
		if ds.SourceError != "" {
			return pass("No candidates available: candidate source unavailable (" + ds.SourceError + ")")
		}
		return pass("No candidates available today")
	}

	// evaluating
	r.advance(ds, model.PhaseEvaluating, log)
	ds.Evaluations = r.evaluate(ctx, candidates, log)
	for _, ev := range ds.Evaluations {
		ds.Abstentions += len(ev.Abstentions)
		if ev.Aggregated() {
			ds.CandidatesEvaluated++
		}
	}
	if ctx.Err() != nil {
		return pass(ReasonCancelled)
	}
	if ds.CandidatesEvaluated == 0 {
		return pass(fmt.Sprintf("No archetype produced a decision for any of %d candidates", len(candidates)))
	}

	// filtering
	r.advance(ds, model.PhaseFiltering, log)
	survivors := r.applyFilter(ctx, ds)
	ds.CandidatesSurvivingFilter = len(survivors)
	if ctx.Err() != nil {
		return pass(ReasonCancelled)
	}

	// deciding
	r.advance(ds, model.PhaseDeciding, log)
	outcome := r.decide(ctx, ds, survivors, log)

	if outcome.Action() != model.ActionAcquire {
		return result{outcome: outcome, ledger: model.LedgerNotRequired}
	}
	return r.record(ctx, ds, outcome.(model.AcquireOutcome), log)
}

func (r *Runner) advance(ds *model.DailySession, next model.Phase, log *zap.Logger) {
	if err := ds.Advance(next, r.now()); err != nil {
		log.Error("session: phase transition rejected", zap.String("phase", string(next)), zap.Error(err))
		return
	}
	log.Debug("session: phase", zap.String("phase", string(next)))
}

// applyFilter ranks the aggregated evaluations, filters them and attaches
// each rejection to its evaluation.
func (r *Runner) applyFilter(ctx context.Context, ds *model.DailySession) []risk.Ranked {
	var ranked []risk.Ranked
	for _, ev := range ds.Evaluations {
		if ev.Consensus == nil {
			continue
		}
		ranked = append(ranked, risk.Ranked{Candidate: ev.Candidate, Consensus: *ev.Consensus})
	}
	ranked = risk.RankByConfidence(ranked)

	survivors, rejections := r.filter.Apply(ctx, ranked, ds.StartedAt)
	byID := make(map[string]*model.Rejection, len(rejections))
	for i := range rejections {
		byID[rejections[i].CandidateID] = &rejections[i]
	}
	for i := range ds.Evaluations {
		if rej, ok := byID[ds.Evaluations[i].Candidate.ID]; ok {
			ds.Evaluations[i].Rejection = rej
		}
	}
	return survivors
}

// record appends the acquisition to the ledger. A failed write keeps the
// acquire outcome and marks it for reconciliation.
func (r *Runner) record(ctx context.Context, ds *model.DailySession, o model.AcquireOutcome, log *zap.Logger) result {
	entry := model.LedgerEntry{
		ID:          uuid.NewString(),
		SessionID:   ds.ID,
		CandidateID: o.Target.ID,
		Date:        ds.Date,
		ArtistID:    o.Target.ArtistID(),
		Category:    o.Target.CategoryOrDefault(),
		Price:       o.BudgetAllocated,
		Currency:    o.Target.PriceCurrency,
		CreatedAt:   r.now(),
	}
	if err := r.deps.Ledger.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("session: ledger write failed",
			zap.String("candidate", o.Target.ID),
			zap.Error(err),
		)
		return result{outcome: o, ledger: model.LedgerFailed, err: err}
	}
	log.Info("session: acquisition recorded",
		zap.String("candidate", o.Target.ID),
		zap.String("price", o.BudgetAllocated.String()),
	)
	return result{outcome: o, ledger: model.LedgerConfirmed}
}

// dedupe keeps the first candidate for each id so every evaluation in the
// audit trail maps to exactly one candidate.
func dedupe(candidates []model.ArtworkCandidate, log *zap.Logger) []model.ArtworkCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			log.Warn("session: duplicate candidate id dropped",
				zap.String("candidate", c.ID),
				zap.String("creator", c.Creator),
			)
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
