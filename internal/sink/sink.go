// Package sink publishes completed session reports downstream.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/pkg/notion"
)

// Sink receives one report per completed session.
type Sink interface {
	Publish(ctx context.Context, r model.SessionReport) error
}

// Multi fans a report out to every sink concurrently. A failing sink does
// not stop the others; all failures are joined.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, r model.SessionReport) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m {
		g.Go(func() error {
			if err := s.Publish(ctx, r); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// New builds the sinks named in cfg.Kinds.
func New(cfg config.SinkConfig, notionCfg config.NotionConfig) (Sink, error) {
	var out Multi
	for _, kind := range cfg.Kinds {
		switch kind {
		case "log":
			out = append(out, NewLogSink())
		case "webhook":
			if cfg.WebhookURL == "" {
				return nil, eris.New("sink: webhook sink requires sink.webhook_url")
			}
			out = append(out, NewWebhookSink(cfg.WebhookURL))
		case "notion":
			if notionCfg.Token == "" || notionCfg.CatalogDB == "" {
				return nil, eris.New("sink: notion sink requires notion.token and notion.catalog_db")
			}
			var opts []notion.ClientOption
			if notionCfg.RateLimit > 0 {
				opts = append(opts, notion.WithRateLimit(notionCfg.RateLimit))
			}
			out = append(out, NewNotionSink(notion.NewClient(notionCfg.Token, opts...), notionCfg.CatalogDB))
		default:
			return nil, eris.Errorf("sink: unsupported kind %q", kind)
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
