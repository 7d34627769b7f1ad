package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
)

// WebhookSink POSTs the report as JSON.
type WebhookSink struct {
	url  string
	http *http.Client
}

// NewWebhookSink creates a WebhookSink with a 10s client timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

func (s *WebhookSink) Publish(ctx context.Context, r model.SessionReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sink: marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "sink: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "sink: webhook request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resilience.CheckResponse("sink.webhook", resp)
}
