package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/alanyoungcy/marketgraph/internal/blob/s3"
	"github.com/alanyoungcy/marketgraph/internal/cache/redis"
	"github.com/alanyoungcy/marketgraph/internal/config"
	"github.com/alanyoungcy/marketgraph/internal/domain"
	"github.com/alanyoungcy/marketgraph/internal/metrics"
	"github.com/alanyoungcy/marketgraph/internal/notify"
	"github.com/alanyoungcy/marketgraph/internal/pipeline"
	"github.com/alanyoungcy/marketgraph/internal/platform/polymarket"
	"github.com/alanyoungcy/marketgraph/internal/ratelimit"
	"github.com/alanyoungcy/marketgraph/internal/server/handler"
	"github.com/alanyoungcy/marketgraph/internal/store/postgres"
)

// historyLimiterKey names the shared Redis window for CLOB price history.
const historyLimiterKey = "clob:prices-history"

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     *postgres.MarketStore
	RelationStore   *postgres.MarketRelationStore
	EmbeddingStore  *postgres.EmbeddingStore
	VolatilityStore *postgres.VolatilityStore

	// Caches and coordination. Nil when Redis is disabled.
	MarketCache domain.MarketCache
	RunLock     domain.RunLock

	// HistoryLimiter gates CLOB price-history calls.
	HistoryLimiter domain.RateLimiter

	// Reports is nil when S3 is disabled.
	Reports pipeline.ReportSink

	// Upstream clients
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient

	Metrics  *metrics.Metrics
	Health   map[string]handler.Check
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(prometheus.NewRegistry()),
		Health:  make(map[string]handler.Check),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:             cfg.Postgres.DSN,
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		Database:        cfg.Postgres.Database,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxConns:        cfg.Postgres.PoolMaxConns,
		MinConns:        cfg.Postgres.PoolMinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "applied migrations", slog.Any("migrations", applied))
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.RelationStore = postgres.NewMarketRelationStore(pool)
	deps.EmbeddingStore = postgres.NewEmbeddingStore(pool)
	deps.VolatilityStore = postgres.NewVolatilityStore(pool)
	deps.Health["postgres"] = pool.Ping

	// --- Price-history limiter, in-process unless shared through Redis ---
	deps.HistoryLimiter = ratelimit.NewSlidingWindow(
		cfg.Polymarket.HistoryMaxRequests,
		cfg.Polymarket.HistoryWindow.Duration,
		ratelimit.WithWaitObserver(deps.Metrics.RecordRateLimitWait),
	)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.RunLock = redis.NewRunLock(redisClient)
		if cfg.Redis.SharedLimiter {
			deps.HistoryLimiter = redis.NewRateLimiter(redisClient).Gate(
				historyLimiterKey,
				cfg.Polymarket.HistoryMaxRequests,
				cfg.Polymarket.HistoryWindow.Duration,
			)
		}
		deps.Health["redis"] = redisClient.Ping
	}

	// --- S3 run reports ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Reports = s3blob.NewReportArchiver(s3blob.NewWriter(s3Client, cfg.S3.Prefix))
		deps.Health["s3"] = s3Client.Health
	}

	// --- Polymarket ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, cfg.Polymarket.RequestTimeout.Duration)
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.RequestTimeout.Duration)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
