package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

var (
	publishSource string
	publishOut    string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Build a snapshot and announce it to searchers",
	Long: `Builds a snapshot, writes it to the snapshot path, saves it to
PostgreSQL when postgres is enabled and announces it on the index.complete
Kafka topic when kafka is enabled.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	addSourceFlags(publishCmd, &publishSource, &publishOut)
	rootCmd.AddCommand(publishCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, func(), error) {
	if !cfg.Postgres.Enabled {
		return nil, nil, errors.New("postgres is not enabled (set postgres.enabled or DS_POSTGRES_ENABLED)")
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	s := store.New(db)
	if err := s.EnsureSchema(cmd.Context()); err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, func() { db.Close() }, nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	if !cfg.Postgres.Enabled && !cfg.Kafka.Enabled {
		return errors.New("nothing to publish to: enable postgres and/or kafka")
	}
	ctx := cmd.Context()

	var saver indexer.SnapshotSaver
	if cfg.Postgres.Enabled {
		s, closeStore, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeStore()
		saver = s
	}
	var publisher kafka.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, kafka.WithBatchTimeout(time.Millisecond))
		defer producer.Close()
		publisher = producer
	}

	ic := indexConfig(publishSource, publishOut)
	engine := indexer.NewEngine(ic, saver, publisher)
	b, err := engine.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if err := engine.WriteFile(b); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := engine.Publish(ctx, b); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}

	cmd.Printf("Published %s\n", b.Version)
	printBuildSummary(cmd, b)
	return nil
}
