package model

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Phase is the current step of a daily session. Phases only move forward.
type Phase string

const (
	PhaseScanning   Phase = "scanning"
	PhaseEvaluating Phase = "evaluating"
	PhaseFiltering  Phase = "filtering"
	PhaseDeciding   Phase = "deciding"
	PhaseComplete   Phase = "complete"
)

var phaseRank = map[Phase]int{
	PhaseScanning:   0,
	PhaseEvaluating: 1,
	PhaseFiltering:  2,
	PhaseDeciding:   3,
	PhaseComplete:   4,
}

// LedgerStatus reports what happened to the ledger write of a session.
type LedgerStatus string

const (
	LedgerNotRequired LedgerStatus = "not_required"
	LedgerConfirmed   LedgerStatus = "confirmed"
	LedgerFailed      LedgerStatus = "failed"
)

var (
	// ErrSessionFrozen is returned when a completed session is mutated.
	ErrSessionFrozen = eris.New("session is complete")
	// ErrPhaseRegression is returned for a transition that does not move forward.
	ErrPhaseRegression = eris.New("session phase can only move forward")
)

// PhaseTransition records when a session entered a phase.
type PhaseTransition struct {
	Phase     Phase     `json:"phase"`
	EnteredAt time.Time `json:"entered_at"`
}

// DailySession is one execution of the selection pipeline. It is owned by the
// run that created it and frozen once it reaches PhaseComplete.
type DailySession struct {
	ID                        string                `json:"id"`
	Date                      time.Time             `json:"date"`
	Phase                     Phase                 `json:"phase"`
	CandidatesSeen            int                   `json:"candidates_seen"`
	CandidatesEvaluated       int                   `json:"candidates_evaluated"`
	CandidatesSurvivingFilter int                   `json:"candidates_surviving_filter"`
	Abstentions               int                   `json:"abstentions"`
	SourceError               string                `json:"source_error,omitempty"`
	Evaluations               []CandidateEvaluation `json:"evaluations,omitempty"`
	Transitions               []PhaseTransition     `json:"transitions"`
	Outcome                   *DailyOutcome         `json:"outcome,omitempty"`
	LedgerStatus              LedgerStatus          `json:"ledger_status,omitempty"`
	LedgerError               string                `json:"ledger_error,omitempty"`
	StartedAt                 time.Time             `json:"started_at"`
	CompletedAt               *time.Time            `json:"completed_at,omitempty"`
}

// NewDailySession starts a session in PhaseScanning.
func NewDailySession(id string, now time.Time) *DailySession {
	return &DailySession{
		ID:          id,
		Date:        StartOfDay(now),
		Phase:       PhaseScanning,
		Transitions: []PhaseTransition{{Phase: PhaseScanning, EnteredAt: now}},
		StartedAt:   now,
	}
}

// Frozen reports whether the session has completed.
func (s *DailySession) Frozen() bool {
	return s.Phase == PhaseComplete
}

// Advance moves the session to next. Skipping forward is allowed; staying in
// place or moving back is not. PhaseComplete is reached through Complete.
func (s *DailySession) Advance(next Phase, at time.Time) error {
	if s.Frozen() {
		return ErrSessionFrozen
	}
	if next == PhaseComplete {
		return eris.New("session: use Complete to finish a session")
	}
	to, ok := phaseRank[next]
	if !ok {
		return eris.Errorf("session: unknown phase %q", next)
	}
	if to <= phaseRank[s.Phase] {
		return eris.Wrapf(ErrPhaseRegression, "session: %s -> %s", s.Phase, next)
	}
	s.Phase = next
	s.Transitions = append(s.Transitions, PhaseTransition{Phase: next, EnteredAt: at})
	return nil
}

// Complete commits the outcome and freezes the session.
func (s *DailySession) Complete(o Outcome, ledger LedgerStatus, ledgerErr error, at time.Time) error {
	if s.Frozen() {
		return ErrSessionFrozen
	}
	if o == nil {
		return eris.New("session: complete requires an outcome")
	}
	report := o.Report()
	s.Outcome = &report
	s.LedgerStatus = ledger
	if ledgerErr != nil {
		s.LedgerError = ledgerErr.Error()
	}
	s.Phase = PhaseComplete
	s.Transitions = append(s.Transitions, PhaseTransition{Phase: PhaseComplete, EnteredAt: at})
	s.CompletedAt = &at
	return nil
}

// Report builds the sink payload for a completed session.
func (s *DailySession) Report() SessionReport {
	r := SessionReport{
		SessionID:                 s.ID,
		Date:                      s.Date,
		CandidatesSeen:            s.CandidatesSeen,
		CandidatesEvaluated:       s.CandidatesEvaluated,
		CandidatesSurvivingFilter: s.CandidatesSurvivingFilter,
		LedgerStatus:              s.LedgerStatus,
		LedgerError:               s.LedgerError,
	}
	if s.Outcome != nil {
		r.Outcome = *s.Outcome
	}
	return r
}

// SessionReport is the payload handed to the outcome sink.
type SessionReport struct {
	SessionID                 string       `json:"session_id"`
	Date                      time.Time    `json:"date"`
	CandidatesSeen            int          `json:"candidates_seen"`
	CandidatesEvaluated       int          `json:"candidates_evaluated"`
	CandidatesSurvivingFilter int          `json:"candidates_surviving_filter"`
	Outcome                   DailyOutcome `json:"outcome"`
	LedgerStatus              LedgerStatus `json:"ledger_status"`
	LedgerError               string       `json:"ledger_error,omitempty"`
}

// NeedsReconciliation reports an acquisition the ledger did not confirm.
func (r SessionReport) NeedsReconciliation() bool {
	return r.Outcome.Action == ActionAcquire && r.LedgerStatus != LedgerConfirmed
}

// Action is the committed session-level result.
type Action string

const (
	ActionAcquire Action = "acquire"
	ActionWait    Action = "wait"
	ActionPass    Action = "pass"
)

// Alternative is a runner-up kept for audit. Alternatives are never acted on.
type Alternative struct {
	Candidate  ArtworkCandidate `json:"candidate"`
	Decision   Decision         `json:"decision"`
	Confidence float64          `json:"confidence"`
}

// Outcome is the result of the deciding step. Each variant carries only the
// fields it needs.
type Outcome interface {
	Action() Action
	Report() DailyOutcome
	isOutcome()
}

// AcquireOutcome commits to buying Target.
type AcquireOutcome struct {
	Target          ArtworkCandidate
	Consensus       ConsensusDecision
	BudgetAllocated decimal.Decimal
	Reasoning       string
	Alternatives    []Alternative
}

// WaitOutcome defers: the best survivor is worth watching, not buying today.
type WaitOutcome struct {
	Target       ArtworkCandidate
	Consensus    ConsensusDecision
	Reasoning    string
	Alternatives []Alternative
}

// PassOutcome commits to no action.
type PassOutcome struct {
	Reasoning    string
	Alternatives []Alternative
}

func (AcquireOutcome) Action() Action { return ActionAcquire }
func (WaitOutcome) Action() Action    { return ActionWait }
func (PassOutcome) Action() Action    { return ActionPass }

func (AcquireOutcome) isOutcome() {}
func (WaitOutcome) isOutcome()    {}
func (PassOutcome) isOutcome()    {}

func (o AcquireOutcome) Report() DailyOutcome {
	target := o.Target
	consensus := o.Consensus
	return DailyOutcome{
		Action:          ActionAcquire,
		Target:          &target,
		FinalConsensus:  &consensus,
		BudgetAllocated: o.BudgetAllocated,
		Reasoning:       o.Reasoning,
		Alternatives:    o.Alternatives,
	}
}

func (o WaitOutcome) Report() DailyOutcome {
	target := o.Target
	consensus := o.Consensus
	return DailyOutcome{
		Action:          ActionWait,
		Target:          &target,
		FinalConsensus:  &consensus,
		BudgetAllocated: decimal.Zero,
		Reasoning:       o.Reasoning,
		Alternatives:    o.Alternatives,
	}
}

func (o PassOutcome) Report() DailyOutcome {
	return DailyOutcome{
		Action:          ActionPass,
		BudgetAllocated: decimal.Zero,
		Reasoning:       o.Reasoning,
		Alternatives:    o.Alternatives,
	}
}

// DailyOutcome is the flattened, serializable form of an Outcome.
type DailyOutcome struct {
	Action          Action             `json:"action"`
	Target          *ArtworkCandidate  `json:"target,omitempty"`
	FinalConsensus  *ConsensusDecision `json:"final_consensus,omitempty"`
	BudgetAllocated decimal.Decimal    `json:"budget_allocated"`
	Reasoning       string             `json:"reasoning"`
	Alternatives    []Alternative      `json:"alternatives,omitempty"`
}

// Variant rebuilds the typed outcome, rejecting illegal shapes such as an
// acquisition without a target.
func (d DailyOutcome) Variant() (Outcome, error) {
	switch d.Action {
	case ActionAcquire:
		if d.Target == nil || d.FinalConsensus == nil {
			return nil, eris.New("outcome: acquire requires target and consensus")
		}
		return AcquireOutcome{
			Target:          *d.Target,
			Consensus:       *d.FinalConsensus,
			BudgetAllocated: d.BudgetAllocated,
			Reasoning:       d.Reasoning,
			Alternatives:    d.Alternatives,
		}, nil
	case ActionWait:
		if d.Target == nil || d.FinalConsensus == nil {
			return nil, eris.New("outcome: wait requires target and consensus")
		}
		return WaitOutcome{
			Target:       *d.Target,
			Consensus:    *d.FinalConsensus,
			Reasoning:    d.Reasoning,
			Alternatives: d.Alternatives,
		}, nil
	case ActionPass:
		return PassOutcome{Reasoning: d.Reasoning, Alternatives: d.Alternatives}, nil
	default:
		return nil, eris.Errorf("outcome: unknown action %q", d.Action)
	}
}
