package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.7, cfg.Relations.SimilarityThreshold)
	assert.Equal(t, 100, cfg.Relations.CandidateLimit)
	assert.Equal(t, 95, cfg.Polymarket.HistoryMaxRequests)
	assert.Equal(t, 10*time.Second, cfg.Polymarket.HistoryWindow.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Polymarket.PageDelay.Duration)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "relations"

[relations]
similarity_threshold = 0.8
estimate_only = true

[polymarket]
page_delay = "1s"

[schedule]
cron = "0 */6 * * *"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "relations", cfg.Mode)
	assert.Equal(t, 0.8, cfg.Relations.SimilarityThreshold)
	assert.True(t, cfg.Relations.EstimateOnly)
	assert.Equal(t, time.Second, cfg.Polymarket.PageDelay.Duration)
	assert.Equal(t, 50, cfg.Relations.BatchSize, "untouched keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MARKETGRAPH_MODE", "volatility")
	t.Setenv("MARKETGRAPH_VOLATILITY_CONCURRENCY", "8")
	t.Setenv("MARKETGRAPH_RELATIONS_CORRELATION_THRESHOLD", "0.25")
	t.Setenv("MARKETGRAPH_REDIS_CACHE_TTL", "90s")
	t.Setenv("MARKETGRAPH_ANALYZE_MARKET_A", "42")
	t.Setenv("MARKETGRAPH_VOLATILITY_BATCH_SIZE", "not-a-number")
	t.Setenv("MARKETGRAPH_NOTIFY_EVENTS", "run_failed, ,relations_complete")

	cfg, err := Load(writeTOML(t, `mode = "scrape"`))
	require.NoError(t, err)

	assert.Equal(t, "volatility", cfg.Mode)
	assert.Equal(t, 8, cfg.Volatility.Concurrency)
	assert.Equal(t, 0.25, cfg.Relations.CorrelationThreshold)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, int64(42), cfg.Analyze.MarketA)
	assert.Equal(t, 50, cfg.Volatility.BatchSize, "unparsable values are ignored")
	assert.Equal(t, []string{"run_failed", "relations_complete"}, cfg.Notify.Events)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	_, err := Load(writeTOML(t, `mode = `))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "verbose"
	cfg.Relations.SimilarityThreshold = 1.5
	cfg.Relations.CandidateLimit = 0
	cfg.Volatility.Concurrency = 0
	cfg.Schedule.Cron = "61 * * * *"
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "verbose"`,
		"similarity_threshold must be in [0, 1]",
		"candidate_limit must be >= 1",
		"concurrency must be >= 1",
		"schedule:",
		"telegram_token and telegram_chat_id must be set together",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateAnalyzeMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "analyze"
	cfg.Assessor.APIKey = ""
	cfg.Assessor.Model = "gpt-4"
	cfg.Analyze = AnalyzeConfig{MarketA: 7, MarketB: 7}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assessor: api_key is required")
	assert.Contains(t, err.Error(), "gpt-4")
	assert.Contains(t, err.Error(), "market_a and market_b must differ")

	cfg.Assessor.APIKey = "key"
	cfg.Assessor.Model = "gemini-pro"
	cfg.Analyze.MarketB = 8
	assert.NoError(t, cfg.Validate())
}

func TestValidateSharedLimiterNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Enabled = false
	cfg.Redis.SharedLimiter = true
	assert.ErrorContains(t, cfg.Validate(), "shared_limiter requires redis.enabled")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Assessor.APIKey = "gemini-secret"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"

	out := RedactedConfig(&cfg)
	out.Notify.Events[0] = "mutated"
	assert.Equal(t, "relations_complete", cfg.Notify.Events[0], "slices are copied")
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Assessor.APIKey)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "pg-secret", cfg.Postgres.Password, "original untouched")
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)

	def := Defaults()
	assert.Equal(t, def.Polymarket, cfg.Polymarket)
	assert.Equal(t, def.Volatility, cfg.Volatility)
	assert.Equal(t, def.Relations, cfg.Relations)
	assert.Equal(t, def.Metrics, cfg.Metrics)
	assert.Equal(t, def.Redis.CacheTTL, cfg.Redis.CacheTTL)
}
