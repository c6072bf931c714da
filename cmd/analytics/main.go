// Command analytics aggregates the query events searchers publish to
// Kafka and serves the totals at GET /api/v1/analytics/stats. With
// PostgreSQL enabled the totals are snapshotted every minute and the
// snapshots are served at GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	saveInterval := flag.Duration("save-interval", time.Minute, "how often stats are written to postgres")
	retention := flag.Duration("retention", 7*24*time.Hour, "how long saved stats are kept, 0 keeps everything")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service requires kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	aggregator := analytics.NewAggregator()
	statsHandler := analytics.NewHandler(aggregator)
	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		statsStore := analytics.NewStore(db)
		if err := statsStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare analytics schema", "error", err)
			os.Exit(1)
		}
		if last, err := statsStore.Latest(ctx); err != nil {
			slog.Warn("could not read previous stats", "error", err)
		} else if last != nil {
			slog.Info("previous stats snapshot found",
				"captured_at", last.CapturedAt,
				"total_searches", last.TotalSearches,
			)
		}
		statsStore.StartPeriodicSave(ctx, aggregator, *saveInterval, *retention)
		statsHandler.WithHistory(statsStore)
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	kcfg := cfg.Kafka
	kcfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-analytics"
	consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator),
		kafka.FromEarliest(),
		kafka.WithConsumerMetrics(m),
	)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents, "group", kcfg.ConsumerGroup)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", statsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", statsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
