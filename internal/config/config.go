// Package config defines the top-level configuration for marketgraph and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketgraph/internal/pipeline"
	"github.com/alanyoungcy/marketgraph/internal/platform/gemini"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETGRAPH_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Volatility VolatilityConfig `toml:"volatility"`
	Relations  RelationsConfig  `toml:"relations"`
	Assessor   AssessorConfig   `toml:"assessor"`
	Analyze    AnalyzeConfig    `toml:"analyze"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. The database must
// have the pgvector extension available.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	CacheTTL   duration `toml:"cache_ttl"`
	// SharedLimiter moves the price-history quota into Redis so several
	// processes draw from one window.
	SharedLimiter bool `toml:"shared_limiter"`
}

// S3Config holds S3-compatible object storage parameters for run reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PolymarketConfig holds Gamma and CLOB endpoints plus request pacing.
type PolymarketConfig struct {
	GammaHost      string   `toml:"gamma_host"`
	ClobHost       string   `toml:"clob_host"`
	RequestTimeout duration `toml:"request_timeout"`
	// HistoryMaxRequests per HistoryWindow bounds price-history calls.
	HistoryMaxRequests int      `toml:"history_max_requests"`
	HistoryWindow      duration `toml:"history_window"`
	RetryBackoff       duration `toml:"retry_backoff"`
	PageSize           int      `toml:"page_size"`
	PageDelay          duration `toml:"page_delay"`
	RateLimitBackoff   duration `toml:"rate_limit_backoff"`
	MaxPages           int      `toml:"max_pages"`
}

// VolatilityConfig controls the volatility migration.
type VolatilityConfig struct {
	Concurrency int      `toml:"concurrency"`
	BatchSize   int      `toml:"batch_size"`
	UseHistory  bool     `toml:"use_history"`
	Limit       int      `toml:"limit"`
	Lookback    duration `toml:"lookback"`
	Fidelity    duration `toml:"fidelity"`
}

// RelationsConfig controls relation discovery.
type RelationsConfig struct {
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	CorrelationThreshold float64 `toml:"correlation_threshold"`
	CandidateLimit       int     `toml:"candidate_limit"`
	BatchSize            int     `toml:"batch_size"`
	// SampleSize of zero applies the min(100, max(10, n/10)) policy.
	SampleSize   int      `toml:"sample_size"`
	EstimateOnly bool     `toml:"estimate_only"`
	MarketLimit  int      `toml:"market_limit"`
	LockTTL      duration `toml:"lock_ttl"`
}

// AssessorConfig selects the qualitative correlation assessor.
type AssessorConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

// AnalyzeConfig names the market pair for analyze mode.
type AnalyzeConfig struct {
	MarketA int64 `toml:"market_a"`
	MarketB int64 `toml:"market_b"`
}

// MetricsConfig holds the Prometheus endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ScheduleConfig turns one-shot modes into long-running ones.
type ScheduleConfig struct {
	// Cron repeats full mode on a five-field cron expression.
	Cron string `toml:"cron"`
	// ScrapeInterval repeats scrape mode on a fixed interval.
	ScrapeInterval duration `toml:"scrape_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketgraph",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			CacheTTL:   duration{10 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketgraph-reports",
			ForcePathStyle: true,
		},
		Polymarket: PolymarketConfig{
			GammaHost:          "https://gamma-api.polymarket.com",
			ClobHost:           "https://clob.polymarket.com",
			RequestTimeout:     duration{30 * time.Second},
			HistoryMaxRequests: 95,
			HistoryWindow:      duration{10 * time.Second},
			RetryBackoff:       duration{5 * time.Second},
			PageSize:           100,
			PageDelay:          duration{500 * time.Millisecond},
			RateLimitBackoff:   duration{10 * time.Second},
		},
		Volatility: VolatilityConfig{
			Concurrency: 4,
			BatchSize:   50,
			UseHistory:  true,
			Lookback:    duration{24 * time.Hour},
			Fidelity:    duration{time.Hour},
		},
		Relations: RelationsConfig{
			SimilarityThreshold:  0.7,
			CorrelationThreshold: 0.0,
			CandidateLimit:       100,
			BatchSize:            50,
			LockTTL:              duration{2 * time.Hour},
		},
		Assessor: AssessorConfig{
			Provider: "gemini",
			Model:    gemini.DefaultModel,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Notify: NotifyConfig{
			Events: []string{"relations_complete", "volatility_complete", "run_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scrape":     true,
	"volatility": true,
	"relations":  true,
	"analyze":    true,
	"full":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func unitInterval(v float64) bool { return v >= 0 && v <= 1 }

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scrape, volatility, relations, analyze, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	} else if c.Redis.SharedLimiter {
		errs = append(errs, "redis: shared_limiter requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Polymarket
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.HistoryMaxRequests < 1 {
		errs = append(errs, "polymarket: history_max_requests must be >= 1")
	}
	if c.Polymarket.HistoryWindow.Duration <= 0 {
		errs = append(errs, "polymarket: history_window must be > 0")
	}
	if c.Polymarket.PageSize < 1 {
		errs = append(errs, "polymarket: page_size must be >= 1")
	}

	// Volatility
	if c.Volatility.Concurrency < 1 {
		errs = append(errs, "volatility: concurrency must be >= 1")
	}
	if c.Volatility.BatchSize < 1 {
		errs = append(errs, "volatility: batch_size must be >= 1")
	}

	// Relations
	if !unitInterval(c.Relations.SimilarityThreshold) {
		errs = append(errs, fmt.Sprintf("relations: similarity_threshold must be in [0, 1], got %g", c.Relations.SimilarityThreshold))
	}
	if !unitInterval(c.Relations.CorrelationThreshold) {
		errs = append(errs, fmt.Sprintf("relations: correlation_threshold must be in [0, 1], got %g", c.Relations.CorrelationThreshold))
	}
	if c.Relations.CandidateLimit < 1 {
		errs = append(errs, "relations: candidate_limit must be >= 1")
	}
	if c.Relations.BatchSize < 1 {
		errs = append(errs, "relations: batch_size must be >= 1")
	}
	if c.Relations.SampleSize < 0 {
		errs = append(errs, "relations: sample_size must be >= 0")
	}

	// Assessor and analyze are only needed for analyze mode.
	if mode == "analyze" {
		if c.Assessor.Provider != "gemini" {
			errs = append(errs, fmt.Sprintf("assessor: unsupported provider %q (valid: gemini)", c.Assessor.Provider))
		}
		if _, err := gemini.ResolveModel(c.Assessor.Model); err != nil {
			errs = append(errs, "assessor: "+err.Error())
		}
		if c.Assessor.APIKey == "" {
			errs = append(errs, "assessor: api_key is required for analyze mode")
		}
		if c.Analyze.MarketA <= 0 || c.Analyze.MarketB <= 0 {
			errs = append(errs, "analyze: market_a and market_b must be positive market ids")
		} else if c.Analyze.MarketA == c.Analyze.MarketB {
			errs = append(errs, "analyze: market_a and market_b must differ")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	// Schedule
	if c.Schedule.Cron != "" {
		if err := pipeline.ValidateCron(c.Schedule.Cron); err != nil {
			errs = append(errs, "schedule: "+err.Error())
		}
	}
	if c.Schedule.ScrapeInterval.Duration < 0 {
		errs = append(errs, "schedule: scrape_interval must not be negative")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
