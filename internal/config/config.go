// Package config loads application configuration and initialises logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/topic-research/internal/cost"
	"github.com/sells-group/topic-research/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" mapstructure:"knowledge"`
	Topics     TopicsConfig     `yaml:"topics" mapstructure:"topics"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run history backend. For sqlite DatabaseURL is
// a file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina reader and search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SearchConfig configures evidence collection.
type SearchConfig struct {
	Passes            []model.PassSpec `yaml:"passes" mapstructure:"passes"`
	PerPassLimit      int              `yaml:"per_pass_limit" mapstructure:"per_pass_limit"`
	SnippetChars      int              `yaml:"snippet_chars" mapstructure:"snippet_chars"`
	PassIntervalMs    int              `yaml:"pass_interval_ms" mapstructure:"pass_interval_ms"`
	SearchTimeoutSecs int              `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	ScrapeTimeoutSecs int              `yaml:"scrape_timeout_secs" mapstructure:"scrape_timeout_secs"`
	Retries           int              `yaml:"retries" mapstructure:"retries"` // extra attempts after the first
	RetryBackoffMs    int              `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	CircuitThreshold  int              `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs  int              `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
	DirectFetch       bool             `yaml:"direct_fetch" mapstructure:"direct_fetch"` // plain HTTP scrape fallback
}

// SearchTimeout returns the per-call search timeout.
func (s SearchConfig) SearchTimeout() time.Duration {
	return time.Duration(s.SearchTimeoutSecs) * time.Second
}

// ScrapeTimeout returns the per-call scrape timeout.
func (s SearchConfig) ScrapeTimeout() time.Duration {
	return time.Duration(s.ScrapeTimeoutSecs) * time.Second
}

// ResearchConfig configures the parallel entity researcher.
type ResearchConfig struct {
	MaxCandidates   int    `yaml:"max_candidates" mapstructure:"max_candidates"`
	MaxWorkers      int    `yaml:"max_workers" mapstructure:"max_workers"`
	TaskTimeoutSecs int    `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	CandidateQuery  string `yaml:"candidate_query" mapstructure:"candidate_query"`
}

// TaskTimeout returns the per-entity research timeout.
func (r ResearchConfig) TaskTimeout() time.Duration {
	return time.Duration(r.TaskTimeoutSecs) * time.Second
}

// LLMConfig configures the text structuring provider.
type LLMConfig struct {
	DefaultModel         string  `yaml:"default_model" mapstructure:"default_model"`
	Temperature          float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens            int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	StructureTimeoutSecs int     `yaml:"structure_timeout_secs" mapstructure:"structure_timeout_secs"`
}

// StructureTimeout returns the per-call model timeout.
func (l LLMConfig) StructureTimeout() time.Duration {
	return time.Duration(l.StructureTimeoutSecs) * time.Second
}

// KnowledgeConfig configures knowledge aggregation.
type KnowledgeConfig struct {
	MaxInputChars int  `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	Chunked       bool `yaml:"chunked" mapstructure:"chunked"` // split over-budget input across calls and merge
}

// TopicsConfig configures the topic catalog.
type TopicsConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
	DefaultKey  string `yaml:"default_key" mapstructure:"default_key"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// MonitoringConfig configures run health thresholds. A zero threshold
// disables its alert.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	NoChoiceRateThreshold float64 `yaml:"no_choice_rate_threshold" mapstructure:"no_choice_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// Load reads configuration from an optional ./config.yaml and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// ./config.yaml, an explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("search.per_pass_limit", 6)
	v.SetDefault("search.snippet_chars", 4000)
	v.SetDefault("search.pass_interval_ms", 250)
	v.SetDefault("search.search_timeout_secs", 30)
	v.SetDefault("search.scrape_timeout_secs", 90)
	v.SetDefault("search.retries", 0)
	v.SetDefault("search.retry_backoff_ms", 500)
	v.SetDefault("search.circuit_threshold", 5)
	v.SetDefault("search.circuit_reset_secs", 30)
	v.SetDefault("search.direct_fetch", true)
	v.SetDefault("research.max_candidates", 4)
	v.SetDefault("research.max_workers", 4)
	v.SetDefault("research.task_timeout_secs", 90)
	v.SetDefault("research.candidate_query", "{name} official site")
	v.SetDefault("llm.default_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.structure_timeout_secs", 60)
	v.SetDefault("knowledge.max_input_chars", 120000)
	v.SetDefault("knowledge.chunked", false)
	v.SetDefault("topics.default_key", "general")
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.no_choice_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 25.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Pricing = withDefaultRates(cfg.Pricing)

	return &cfg, nil
}

// withDefaultRates fills pricing sections left empty by the config file.
func withDefaultRates(r cost.Rates) cost.Rates {
	d := cost.DefaultRates()
	if len(r.Anthropic) == 0 {
		r.Anthropic = d.Anthropic
	}
	if len(r.Perplexity) == 0 {
		r.Perplexity = d.Perplexity
	}
	if r.Jina.PerMTok == 0 {
		r.Jina = d.Jina
	}
	if r.Firecrawl.CreditsIncluded == 0 {
		r.Firecrawl = d.Firecrawl
	}
	return r
}

// Validate checks that the settings needed by the given command are present.
// Modes: "research", "runs", "migrate", "topics".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "research":
		if c.Firecrawl.Key == "" && c.Jina.Key == "" {
			errs = append(errs, "firecrawl.key or jina.key is required")
		}
		switch {
		case strings.HasPrefix(c.LLM.DefaultModel, "claude"):
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case strings.HasPrefix(c.LLM.DefaultModel, "sonar"):
			if c.Perplexity.Key == "" {
				errs = append(errs, "perplexity.key is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("llm.default_model %q is not a supported model", c.LLM.DefaultModel))
		}
		if c.Research.MaxWorkers < 1 || c.Research.MaxWorkers > 16 {
			errs = append(errs, "research.max_workers must be between 1 and 16")
		}
		if c.Research.MaxCandidates < 1 {
			errs = append(errs, "research.max_candidates must be > 0")
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
			errs = append(errs, "llm.temperature must be between 0 and 1")
		}
		if c.Search.SnippetChars <= 0 {
			errs = append(errs, "search.snippet_chars must be > 0")
		}
		errs = append(errs, c.validateStore()...)
	case "runs", "migrate":
		errs = append(errs, c.validateStore()...)
	case "topics":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)}
	}
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
