package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Strategy   StrategyConfig   `yaml:"strategy" mapstructure:"strategy"`
	Policies   PoliciesConfig   `yaml:"policies" mapstructure:"policies"`
	Sink       SinkConfig       `yaml:"sink" mapstructure:"sink"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the ledger and session audit database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds settings for the LLM-backed scorer.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// SourceConfig selects and configures the candidate source.
type SourceConfig struct {
	Kind        string  `yaml:"kind" mapstructure:"kind"`
	Path        string  `yaml:"path" mapstructure:"path"`
	URL         string  `yaml:"url" mapstructure:"url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SessionConfig tunes a daily session run.
type SessionConfig struct {
	CandidateLimit       int    `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	MaxWorkers           int    `yaml:"max_workers" mapstructure:"max_workers"`
	EvaluatorTimeoutSecs int    `yaml:"evaluator_timeout_secs" mapstructure:"evaluator_timeout_secs"`
	Scorer               string `yaml:"scorer" mapstructure:"scorer"`
	MaxAlternatives      int    `yaml:"max_alternatives" mapstructure:"max_alternatives"`
}

// PoliciesConfig points at an optional archetype policy file. An empty path
// uses the built-in archetypes; Enabled restricts them by name.
type PoliciesConfig struct {
	Path    string   `yaml:"path" mapstructure:"path"`
	Enabled []string `yaml:"enabled" mapstructure:"enabled"`
}

// SinkConfig lists the outcome sinks to publish to.
type SinkConfig struct {
	Kinds      []string `yaml:"kinds" mapstructure:"kinds"`
	WebhookURL string   `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotionConfig holds the catalog database settings.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	CatalogDB string  `yaml:"catalog_db" mapstructure:"catalog_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the status snapshot and alert thresholds.
type MonitoringConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackDays      int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxPassStreak     int     `yaml:"max_pass_streak" mapstructure:"max_pass_streak"`
	MaxAbstentionRate float64 `yaml:"max_abstention_rate" mapstructure:"max_abstention_rate"`
	CheckIntervalSecs int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ResilienceConfig configures retries and circuit breakers for external calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "curator.db")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("source.kind", "file")
	v.SetDefault("source.path", "candidates.json")
	v.SetDefault("source.page_size", 50)
	v.SetDefault("source.rate_limit", 5.0)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("session.candidate_limit", 100)
	v.SetDefault("session.max_workers", 4)
	v.SetDefault("session.evaluator_timeout_secs", 20)
	v.SetDefault("session.scorer", "rule")
	v.SetDefault("session.max_alternatives", 3)
	v.SetDefault("sink.kinds", []string{"log"})
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.lookback_days", 30)
	v.SetDefault("monitoring.max_pass_streak", 14)
	v.SetDefault("monitoring.max_abstention_rate", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 3600)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	setStrategyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: run, serve
// (run plus the server), read (store-only commands).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "run", "serve":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateSession()...)
		if err := c.Strategy.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "read":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return []string{"store.path is required for sqlite"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	return nil
}

func (c *Config) validateSession() []string {
	var problems []string

	if c.Session.MaxWorkers < 1 || c.Session.MaxWorkers > 32 {
		problems = append(problems, "session.max_workers must be between 1 and 32")
	}
	if c.Session.EvaluatorTimeoutSecs <= 0 {
		problems = append(problems, "session.evaluator_timeout_secs must be > 0")
	}
	if c.Session.MaxAlternatives < 1 || c.Session.MaxAlternatives > 3 {
		problems = append(problems, "session.max_alternatives must be between 1 and 3")
	}
	if c.Session.CandidateLimit <= 0 {
		problems = append(problems, "session.candidate_limit must be > 0")
	}
	switch c.Session.Scorer {
	case "rule":
	case "llm":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required for the llm scorer")
		}
	default:
		problems = append(problems, "session.scorer must be rule or llm")
	}

	switch c.Source.Kind {
	case "file":
		if c.Source.Path == "" {
			problems = append(problems, "source.path is required for the file source")
		}
	case "http":
		if c.Source.URL == "" {
			problems = append(problems, "source.url is required for the http source")
		}
	default:
		problems = append(problems, "source.kind must be file or http")
	}

	for _, kind := range c.Sink.Kinds {
		switch kind {
		case "log":
		case "webhook":
			if c.Sink.WebhookURL == "" {
				problems = append(problems, "sink.webhook_url is required for the webhook sink")
			}
		case "notion":
			if c.Notion.Token == "" || c.Notion.CatalogDB == "" {
				problems = append(problems, "notion.token and notion.catalog_db are required for the notion sink")
			}
		default:
			problems = append(problems, "unknown sink kind "+kind)
		}
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
