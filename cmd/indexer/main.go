package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	interval := flag.Duration("interval", 0, "rebuild period; 0 builds once and exits")
	keep := flag.Int("keep", 10, "snapshots kept in postgres after each publish; 0 keeps all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer",
		"source_dir", cfg.Index.SourceDir,
		"snapshot", cfg.Index.SnapshotPath,
		"interval", *interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	}

	var publisher kafka.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, kafka.WithBatchTimeout(time.Millisecond))
		defer producer.Close()
		publisher = producer
	}

	var saver indexer.SnapshotSaver
	if snapshotStore != nil {
		saver = snapshotStore
	}
	engine := indexer.NewEngine(cfg.Index, saver, publisher)
	if *interval > 0 && cfg.Metrics.Enabled {
		engine.WithMetrics(metrics.New(nil))
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	lastChecksum := ""
	run := func() error {
		b, err := engine.Build(ctx)
		if err != nil {
			return err
		}
		if b.Checksum == lastChecksum {
			slog.Info("sources unchanged, skipping publish", "checksum", b.Checksum)
			return nil
		}
		if err := engine.WriteFile(b); err != nil {
			return err
		}
		if err := engine.Publish(ctx, b); err != nil {
			return err
		}
		lastChecksum = b.Checksum
		if snapshotStore != nil && *keep > 0 {
			if _, err := snapshotStore.Prune(ctx, *keep); err != nil {
				slog.Warn("pruning old snapshots failed", "error", err)
			}
		}
		return nil
	}

	if err := run(); err != nil {
		slog.Error("index build failed", "error", err)
		if *interval <= 0 {
			os.Exit(1)
		}
	}
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("indexer stopped")
			return
		case <-ticker.C:
			if err := run(); err != nil {
				slog.Error("index build failed", "error", err)
			}
		}
	}
}
