package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/archetype"
	"github.com/sells-group/curator-cli/internal/config"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
	"github.com/sells-group/curator-cli/internal/risk"
	"github.com/sells-group/curator-cli/internal/session"
	"github.com/sells-group/curator-cli/internal/sink"
	"github.com/sells-group/curator-cli/internal/source"
	"github.com/sells-group/curator-cli/internal/store"
	anthropicpkg "github.com/sells-group/curator-cli/pkg/anthropic"
)

// curatorEnv holds the store, breakers and runner needed by the run and
// serve commands.
type curatorEnv struct {
	Store    store.Store
	Runner   *session.Runner
	Breakers *resilience.Breakers
	Policies []model.ArchetypePolicy
}

// Close releases resources held by the environment.
func (e *curatorEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initCurator validates config for mode, opens the store and builds the
// session runner. Callers should defer env.Close().
func initCurator(ctx context.Context, mode string) (*curatorEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	policies, err := loadPolicies(cfg.Policies)
	if err != nil {
		return nil, err
	}

	retry := retryConfig(cfg.Resilience)
	src, err := source.New(cfg.Source, retry)
	if err != nil {
		return nil, err
	}
	out, err := sink.New(cfg.Sink, cfg.Notion)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(breakerConfig(cfg.Resilience))
	scorer, err := buildScorer(cfg, breakers, retry)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	runner, err := session.NewRunner(session.Deps{
		Source:   src,
		Scorer:   scorer,
		Policies: policies,
		Strategy: risk.FromConfig(cfg.Strategy),
		Ledger:   st,
		Sessions: st,
		Sink:     out,
	}, session.OptionsFromConfig(cfg.Session))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Info("curator initialized",
		zap.String("scorer", cfg.Session.Scorer),
		zap.String("source", cfg.Source.Kind),
		zap.String("store", cfg.Store.Driver),
		zap.Int("policies", len(policies)),
	)

	return &curatorEnv{Store: st, Runner: runner, Breakers: breakers, Policies: policies}, nil
}

// initStore opens the configured store for read commands.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("read"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}

// loadPolicies returns the built-in archetypes or those in the configured
// file, restricted to the enabled names.
func loadPolicies(pc config.PoliciesConfig) ([]model.ArchetypePolicy, error) {
	policies := archetype.DefaultPolicies()
	if pc.Path != "" {
		loaded, err := archetype.LoadPolicies(pc.Path)
		if err != nil {
			return nil, err
		}
		policies = loaded
	}
	return archetype.Select(policies, pc.Enabled)
}

func buildScorer(c *config.Config, breakers *resilience.Breakers, retry resilience.RetryConfig) (archetype.Scorer, error) {
	switch c.Session.Scorer {
	case "rule", "":
		return archetype.RuleScorer{}, nil
	case "llm":
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return archetype.NewLLMScorer(client, archetype.LLMOptions{
			Model:       c.Anthropic.Model,
			MaxTokens:   c.Anthropic.MaxTokens,
			Temperature: c.Anthropic.Temperature,
		}, breakers, retry), nil
	default:
		return nil, eris.Errorf("unsupported scorer: %s", c.Session.Scorer)
	}
}

func retryConfig(rc config.ResilienceConfig) resilience.RetryConfig {
	out := resilience.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		out.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		out.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		out.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.JitterFraction > 0 {
		out.JitterFraction = rc.JitterFraction
	}
	return out
}

func breakerConfig(rc config.ResilienceConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: rc.FailureThreshold,
		Cooldown:         time.Duration(rc.ResetTimeoutSecs) * time.Second,
		Counts:           archetype.Retryable,
	}
}
