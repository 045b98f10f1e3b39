package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETGRAPH_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETGRAPH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETGRAPH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MARKETGRAPH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETGRAPH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETGRAPH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETGRAPH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETGRAPH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETGRAPH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETGRAPH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETGRAPH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETGRAPH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETGRAPH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETGRAPH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETGRAPH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETGRAPH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETGRAPH_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "MARKETGRAPH_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "MARKETGRAPH_REDIS_CACHE_TTL")
	setBool(&cfg.Redis.SharedLimiter, "MARKETGRAPH_REDIS_SHARED_LIMITER")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MARKETGRAPH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETGRAPH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETGRAPH_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETGRAPH_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MARKETGRAPH_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MARKETGRAPH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETGRAPH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETGRAPH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETGRAPH_S3_FORCE_PATH_STYLE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "MARKETGRAPH_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "MARKETGRAPH_POLYMARKET_CLOB_HOST")
	setDuration(&cfg.Polymarket.RequestTimeout, "MARKETGRAPH_POLYMARKET_REQUEST_TIMEOUT")
	setInt(&cfg.Polymarket.HistoryMaxRequests, "MARKETGRAPH_POLYMARKET_HISTORY_MAX_REQUESTS")
	setDuration(&cfg.Polymarket.HistoryWindow, "MARKETGRAPH_POLYMARKET_HISTORY_WINDOW")
	setDuration(&cfg.Polymarket.PageDelay, "MARKETGRAPH_POLYMARKET_PAGE_DELAY")
	setInt(&cfg.Polymarket.MaxPages, "MARKETGRAPH_POLYMARKET_MAX_PAGES")

	// ── Volatility ──
	setInt(&cfg.Volatility.Concurrency, "MARKETGRAPH_VOLATILITY_CONCURRENCY")
	setInt(&cfg.Volatility.BatchSize, "MARKETGRAPH_VOLATILITY_BATCH_SIZE")
	setBool(&cfg.Volatility.UseHistory, "MARKETGRAPH_VOLATILITY_USE_HISTORY")
	setInt(&cfg.Volatility.Limit, "MARKETGRAPH_VOLATILITY_LIMIT")

	// ── Relations ──
	setFloat64(&cfg.Relations.SimilarityThreshold, "MARKETGRAPH_RELATIONS_SIMILARITY_THRESHOLD")
	setFloat64(&cfg.Relations.CorrelationThreshold, "MARKETGRAPH_RELATIONS_CORRELATION_THRESHOLD")
	setInt(&cfg.Relations.CandidateLimit, "MARKETGRAPH_RELATIONS_CANDIDATE_LIMIT")
	setInt(&cfg.Relations.BatchSize, "MARKETGRAPH_RELATIONS_BATCH_SIZE")
	setInt(&cfg.Relations.SampleSize, "MARKETGRAPH_RELATIONS_SAMPLE_SIZE")
	setBool(&cfg.Relations.EstimateOnly, "MARKETGRAPH_RELATIONS_ESTIMATE_ONLY")
	setInt(&cfg.Relations.MarketLimit, "MARKETGRAPH_RELATIONS_MARKET_LIMIT")

	// ── Assessor ──
	setStr(&cfg.Assessor.Provider, "MARKETGRAPH_ASSESSOR_PROVIDER")
	setStr(&cfg.Assessor.Model, "MARKETGRAPH_ASSESSOR_MODEL")
	setStr(&cfg.Assessor.APIKey, "MARKETGRAPH_ASSESSOR_API_KEY")
	setStr(&cfg.Assessor.APIKey, "GEMINI_API_KEY") // compatibility alias

	// ── Analyze ──
	setInt64(&cfg.Analyze.MarketA, "MARKETGRAPH_ANALYZE_MARKET_A")
	setInt64(&cfg.Analyze.MarketB, "MARKETGRAPH_ANALYZE_MARKET_B")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "MARKETGRAPH_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "MARKETGRAPH_METRICS_ADDR")

	// ── Schedule ──
	setStr(&cfg.Schedule.Cron, "MARKETGRAPH_SCHEDULE_CRON")
	setDuration(&cfg.Schedule.ScrapeInterval, "MARKETGRAPH_SCHEDULE_SCRAPE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETGRAPH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETGRAPH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETGRAPH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETGRAPH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETGRAPH_MODE")
	setStr(&cfg.LogLevel, "MARKETGRAPH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
