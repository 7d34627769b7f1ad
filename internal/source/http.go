package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
)

const defaultPageSize = 50

// page is one response of the discovery API.
type page struct {
	Candidates []model.ArtworkCandidate `json:"candidates"`
	NextCursor string                   `json:"next_cursor"`
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.http = hc }
}

// WithTimeout sets the per-request timeout in seconds.
func WithTimeout(secs int) HTTPOption {
	return func(s *HTTPSource) { s.http.Timeout = time.Duration(secs) * time.Second }
}

// WithLimiter paces page requests.
func WithLimiter(l *rate.Limiter) HTTPOption {
	return func(s *HTTPSource) { s.limiter = l }
}

// WithRetry sets the retry schedule for each page request.
func WithRetry(cfg resilience.RetryConfig) HTTPOption {
	return func(s *HTTPSource) { s.retry = cfg }
}

// WithPageSize sets the page size requested from the API.
func WithPageSize(n int) HTTPOption {
	return func(s *HTTPSource) { s.pageSize = n }
}

// HTTPSource pages through a discovery API with ?limit=&cursor= until the
// limit is reached or the API returns no cursor.
type HTTPSource struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// NewHTTPSource creates an HTTPSource for baseURL.
func NewHTTPSource(baseURL, token string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:  baseURL,
		token:    token,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Operation = "source.list"
	return s
}

// ListCandidates returns the gathered candidates and the error when a page
// fails after its retries.
func (s *HTTPSource) ListCandidates(ctx context.Context, limit int) ([]model.ArtworkCandidate, error) {
	var out []model.ArtworkCandidate
	cursor := ""
	for {
		size := s.pageSize
		if limit > 0 && limit-len(out) < size {
			size = limit - len(out)
		}

		p, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (page, error) {
			return s.fetch(ctx, cursor, size)
		})
		if err != nil {
			return out, eris.Wrapf(err, "source: list candidates after %d", len(out))
		}

		out = append(out, keepValid("http", p.Candidates)...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if p.NextCursor == "" || len(p.Candidates) == 0 {
			return out, nil
		}
		cursor = p.NextCursor
	}
}

func (s *HTTPSource) fetch(ctx context.Context, cursor string, size int) (page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return page{}, eris.Wrap(err, "source: rate limiter")
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(size))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return page{}, eris.Wrap(err, "source: create request")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return page{}, eris.Wrap(err, "source: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse("source", resp); err != nil {
		return page{}, err
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return page{}, eris.Wrap(err, "source: decode page")
	}
	zap.L().Debug("source: fetched page",
		zap.String("cursor", cursor),
		zap.Int("count", len(p.Candidates)),
	)
	return p, nil
}
