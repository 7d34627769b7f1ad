package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

// LogSink writes the report to the global zap logger.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) Publish(_ context.Context, r model.SessionReport) error {
	fields := []zap.Field{
		zap.String("session_id", r.SessionID),
		zap.String("action", string(r.Outcome.Action)),
		zap.String("reasoning", r.Outcome.Reasoning),
		zap.Int("candidates_seen", r.CandidatesSeen),
		zap.Int("candidates_surviving", r.CandidatesSurvivingFilter),
		zap.String("ledger_status", string(r.LedgerStatus)),
	}
	if t := r.Outcome.Target; t != nil {
		fields = append(fields,
			zap.String("candidate", t.ID),
			zap.String("title", t.Title),
			zap.String("price", t.PriceAmount.String()),
		)
	}
	if r.NeedsReconciliation() {
		zap.L().Error("sink: acquisition not recorded in ledger", append(fields, zap.String("ledger_error", r.LedgerError))...)
		return nil
	}
	zap.L().Info("sink: session outcome", fields...)
	return nil
}
