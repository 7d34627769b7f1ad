package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/pkg/notion"
)

// SessionKeyProp is the catalog property holding the session id.
const SessionKeyProp = "Session ID"

// NotionSink records each session as a page in a Notion catalog database.
// Publishing the same session twice updates its page.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotionSink creates a NotionSink writing to database dbID.
func NewNotionSink(client notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: client, dbID: dbID}
}

func (s *NotionSink) Publish(ctx context.Context, r model.SessionReport) error {
	pageID, err := notion.UpsertByKey(ctx, s.client, s.dbID, SessionKeyProp, r.SessionID, catalogProperties(r))
	if err != nil {
		return eris.Wrapf(err, "sink: notion publish %s", r.SessionID)
	}
	zap.L().Debug("sink: notion page written",
		zap.String("session_id", r.SessionID),
		zap.String("page_id", pageID),
	)
	return nil
}

func catalogProperties(r model.SessionReport) notionapi.Properties {
	o := r.Outcome
	name := fmt.Sprintf("%s %s", r.Date.Format("2006-01-02"), o.Action)
	props := notionapi.Properties{
		"Action":               notion.Select(string(o.Action)),
		"Date":                 notion.Date(r.Date),
		"Reasoning":            notion.Text(o.Reasoning),
		"Budget Allocated":     notion.Number(o.BudgetAllocated.InexactFloat64()),
		"Candidates Seen":      notion.Number(float64(r.CandidatesSeen)),
		"Ledger Status":        notion.Select(string(r.LedgerStatus)),
		"Needs Reconciliation": notion.Checkbox(r.NeedsReconciliation()),
	}
	if t := o.Target; t != nil {
		name = fmt.Sprintf("%s: %s", name, t.Title)
		props["Artwork"] = notion.Text(t.Title)
		props["Artist"] = notion.Text(t.Creator)
		props["Price"] = notion.Number(t.PriceAmount.InexactFloat64())
		props["Currency"] = notion.Select(t.PriceCurrency)
		props["Platform"] = notion.Text(t.SourcePlatform)
	}
	if c := o.FinalConsensus; c != nil {
		props["Confidence"] = notion.Number(c.Confidence)
		props["Urgency"] = notion.Select(string(c.Urgency))
		props["Risks"] = notion.Text(strings.Join(c.RiskFactors, "; "))
	}
	props["Name"] = notion.Title(name)
	return props
}
