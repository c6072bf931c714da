package reloader

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/events"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// HandleIndexComplete returns a Kafka MessageHandler that loads each
// announced snapshot. Undecodable events are logged and committed so they
// do not block the partition; load failures are returned so the offset
// stays uncommitted.
func (r *Reloader) HandleIndexComplete() kafka.MessageHandler {
	logger := slog.Default().With("component", "index-complete-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := events.DecodeIndexComplete(value)
		if err != nil {
			logger.Error("discarding index.complete event", "key", string(key), "error", err)
			return nil
		}
		logger.Info("snapshot announced",
			"version", ev.Version,
			"location", ev.Location,
			"documents", ev.DocCount,
		)
		if ev.Location == events.LocationStore {
			_, err = r.ReloadFromStore(ctx, ev.Version)
		} else {
			_, err = r.ReloadFromFile(ctx)
		}
		return err
	}
}
