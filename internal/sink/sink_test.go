package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
)

func acquireReport(ledger model.LedgerStatus) model.SessionReport {
	target := model.ArtworkCandidate{
		ID:             "c1",
		Title:          "Tidal",
		Creator:        "Zoë Ko",
		PriceAmount:    decimal.NewFromInt(3),
		PriceCurrency:  "ETH",
		SourcePlatform: "foundation",
	}
	consensus := model.ConsensusDecision{
		Decision:    model.DecisionBuy,
		Confidence:  0.725,
		Urgency:     model.UrgencyWithinWeek,
		RiskFactors: []string{"Weak market signals"},
	}
	return model.SessionReport{
		SessionID:      "s-1",
		Date:           time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		CandidatesSeen: 4,
		Outcome: model.AcquireOutcome{
			Target:          target,
			Consensus:       consensus,
			BudgetAllocated: decimal.NewFromInt(3),
			Reasoning:       "Acquire Tidal",
		}.Report(),
		LedgerStatus: ledger,
	}
}

func TestWebhookSink_Posts(t *testing.T) {
	t.Parallel()

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookSink(srv.URL).Publish(context.Background(), acquireReport(model.LedgerConfirmed)))
	assert.Equal(t, "s-1", gjson.GetBytes(body, "session_id").String())
	assert.Equal(t, "acquire", gjson.GetBytes(body, "outcome.action").String())
	assert.Equal(t, "c1", gjson.GetBytes(body, "outcome.target.id").String())
	assert.Equal(t, "confirmed", gjson.GetBytes(body, "ledger_status").String())
}

func TestWebhookSink_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down")) //nolint:errcheck
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Publish(context.Background(), acquireReport(model.LedgerConfirmed))
	require.Error(t, err)
	var se *resilience.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "upstream down", se.Body)
}

// mockNotion implements notion.Client for testing.
type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestNotionSink_CreatesCatalogPage(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "catalog", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		p := req.Properties
		title, ok := p["Name"].(notionapi.TitleProperty)
		if !ok || len(title.Title) == 0 {
			return false
		}
		action, _ := p["Action"].(notionapi.SelectProperty)
		recon, _ := p["Needs Reconciliation"].(notionapi.CheckboxProperty)
		price, _ := p["Price"].(notionapi.NumberProperty)
		return title.Title[0].Text.Content == "2026-10-16 acquire: Tidal" &&
			action.Select.Name == "acquire" &&
			recon.Checkbox &&
			price.Number == 3
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	err := NewNotionSink(mc, "catalog").Publish(ctx, acquireReport(model.LedgerFailed))
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestNotionSink_PassHasNoTarget(t *testing.T) {
	r := model.SessionReport{
		SessionID: "s-2",
		Date:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Outcome:   model.PassOutcome{Reasoning: "No candidates available"}.Report(),
	}
	props := catalogProperties(r)
	assert.NotContains(t, props, "Artwork")
	assert.NotContains(t, props, "Confidence")
	title := props["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "2026-10-16 pass", title.Title[0].Text.Content)
}

func TestNotionSink_Error(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()
	mc.On("QueryDatabase", ctx, "catalog", mock.Anything).Return(nil, errors.New("unauthorized")).Once()

	err := NewNotionSink(mc, "catalog").Publish(ctx, acquireReport(model.LedgerConfirmed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion publish s-1")
}

type funcSink func(ctx context.Context, r model.SessionReport) error

func (f funcSink) Publish(ctx context.Context, r model.SessionReport) error { return f(ctx, r) }

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	var delivered atomic.Int32
	ok := funcSink(func(context.Context, model.SessionReport) error {
		delivered.Add(1)
		return nil
	})
	fail := func(msg string) Sink {
		return funcSink(func(context.Context, model.SessionReport) error {
			delivered.Add(1)
			return errors.New(msg)
		})
	}

	err := Multi{ok, fail("webhook down"), ok, fail("notion down")}.Publish(context.Background(), acquireReport(model.LedgerConfirmed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook down")
	assert.Contains(t, err.Error(), "notion down")
	assert.Equal(t, int32(4), delivered.Load())

	assert.NoError(t, Multi{ok}.Publish(context.Background(), acquireReport(model.LedgerConfirmed)))
}

func TestLogSink(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewLogSink().Publish(context.Background(), acquireReport(model.LedgerFailed)))
	assert.NoError(t, NewLogSink().Publish(context.Background(), acquireReport(model.LedgerConfirmed)))
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := New(config.SinkConfig{Kinds: []string{"log"}}, config.NotionConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, s)

	s, err = New(config.SinkConfig{Kinds: []string{"log", "webhook"}, WebhookURL: "http://hooks.test"},
		config.NotionConfig{})
	require.NoError(t, err)
	assert.Len(t, s.(Multi), 2)

	_, err = New(config.SinkConfig{Kinds: []string{"webhook"}}, config.NotionConfig{})
	assert.Error(t, err)

	_, err = New(config.SinkConfig{Kinds: []string{"notion"}}, config.NotionConfig{Token: "t"})
	assert.Error(t, err)

	s, err = New(config.SinkConfig{Kinds: []string{"notion"}}, config.NotionConfig{Token: "t", CatalogDB: "db"})
	require.NoError(t, err)
	assert.IsType(t, &NotionSink{}, s)

	_, err = New(config.SinkConfig{Kinds: []string{"slack"}}, config.NotionConfig{})
	assert.Error(t, err)
}
