package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/live"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"snapshot", cfg.Index.SnapshotPath,
		"postgres", cfg.Postgres.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	holder := live.NewHolder()
	opts := []reloader.Option{
		reloader.WithMetrics(m),
		reloader.WithStoreTimeout(cfg.Index.LoadTimeout),
	}

	var snapshotStore *store.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		snapshotStore = store.New(db)
		if err := snapshotStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot store", "error", err)
			os.Exit(1)
		}
		opts = append(opts, reloader.WithStore(snapshotStore))
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			opts = append(opts, reloader.WithInvalidator(queryCache))
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	rl := reloader.New(holder, cfg.Index.SnapshotPath, opts...)
	if loaded, err := rl.Reload(ctx); err != nil {
		slog.Warn("no snapshot loaded at startup, waiting for one", "error", err)
	} else {
		slog.Info("snapshot loaded",
			"version", loaded.Version,
			"source", loaded.Source,
			"documents", loaded.Index.DocCount(),
		)
	}
	checker.Register("snapshot", func(ctx context.Context) health.ComponentHealth {
		if !holder.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: holder.Version()}
	})

	if cfg.Index.Watch && cfg.Index.SnapshotPath != "" {
		go func() {
			if err := rl.Watch(ctx, cfg.Index.WatchDebounce); err != nil {
				slog.Error("snapshot watcher stopped", "error", err)
			}
		}()
	}

	aggregator := analytics.NewAggregator()
	trackers := analytics.Fanout{aggregator}
	if cfg.Kafka.Enabled {
		instance, _ := os.Hostname()
		kcfg := cfg.Kafka
		kcfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, instance)
		indexConsumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.IndexComplete, rl.HandleIndexComplete(), kafka.WithConsumerMetrics(m))
		go func() {
			if err := indexConsumer.Start(ctx); err != nil {
				slog.Error("index.complete consumer error", "error", err)
			}
		}()

		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, kafka.WithProducerMetrics(m))
		defer producer.Close()
		collector := analytics.NewBatchCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("kafka wiring enabled",
			"index_topic", cfg.Kafka.Topics.IndexComplete,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	h := handler.New(holder, executor.New(holder), queryCache, rl, trackers, m, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Search.QueryTimeout)(chain)
	chain = middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
