// Package source produces the day's artwork candidates.
package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
)

// Source lists candidates for one session. An empty list is not an error.
// On failure an implementation may return the candidates it gathered so far
// together with the error.
type Source interface {
	ListCandidates(ctx context.Context, limit int) ([]model.ArtworkCandidate, error)
}

// New builds the source selected by cfg.Kind.
func New(cfg config.SourceConfig, retry resilience.RetryConfig) (Source, error) {
	switch cfg.Kind {
	case "file", "":
		if cfg.Path == "" {
			return nil, eris.New("source: file source requires source.path")
		}
		return NewFileSource(cfg.Path), nil
	case "http":
		opts := []HTTPOption{WithRetry(retry)}
		if cfg.RateLimit > 0 {
			opts = append(opts, WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
		}
		if cfg.PageSize > 0 {
			opts = append(opts, WithPageSize(cfg.PageSize))
		}
		if cfg.TimeoutSecs > 0 {
			opts = append(opts, WithTimeout(cfg.TimeoutSecs))
		}
		return NewHTTPSource(cfg.URL, cfg.Token, opts...), nil
	default:
		return nil, eris.Errorf("source: unsupported kind %q", cfg.Kind)
	}
}

// normalize trims text fields and clamps signals. Candidates without an id or
// with a negative price are rejected.
func normalize(c model.ArtworkCandidate) (model.ArtworkCandidate, error) {
	c.ID = strings.TrimSpace(c.ID)
	c.Title = strings.TrimSpace(c.Title)
	c.Creator = strings.TrimSpace(c.Creator)
	c.PriceCurrency = strings.ToUpper(strings.TrimSpace(c.PriceCurrency))
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	c.Signals = c.Signals.Clamp()

	if c.ID == "" {
		return c, eris.New("candidate id is required")
	}
	if c.PriceAmount.IsNegative() {
		return c, eris.Errorf("candidate %s has negative price %s", c.ID, c.PriceAmount)
	}
	return c, nil
}

// keepValid normalizes candidates, dropping and logging the invalid ones.
func keepValid(source string, in []model.ArtworkCandidate) []model.ArtworkCandidate {
	out := make([]model.ArtworkCandidate, 0, len(in))
	for _, c := range in {
		n, err := normalize(c)
		if err != nil {
			zap.L().Warn("source: skipping invalid candidate",
				zap.String("source", source),
				zap.Error(err),
			)
			continue
		}
		out = append(out, n)
	}
	return out
}
