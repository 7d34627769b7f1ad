// Package notion wraps the Notion API for the acquisition catalog database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion operations the catalog sink needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*limitedClient)

// WithRateLimit overrides the default 3 req/s. Zero disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *limitedClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type limitedClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a Client throttled to Notion's published rate limit.
func NewClient(token string, opts ...ClientOption) Client {
	c := &limitedClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// throttled waits for the limiter, then runs call.
func throttled[T any](ctx context.Context, l *rate.Limiter, op string, call func() (T, error)) (T, error) {
	var zero T
	if l != nil {
		if err := l.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	v, err := call()
	if err != nil {
		return zero, eris.Wrap(err, "notion: "+op)
	}
	return v, nil
}

func (c *limitedClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return throttled(ctx, c.limiter, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *limitedClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.limiter, "create page", func() (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
}

func (c *limitedClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return throttled(ctx, c.limiter, "update page "+pageID, func() (*notionapi.Page, error) {
		return c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}
