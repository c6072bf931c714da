// Package events defines the message announcing that a new snapshot
// version is available, and publishes it through pkg/kafka.
package events

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// IndexCompleteEvent is published on the index.complete topic after a
// snapshot has been stored. Location is the store ("postgres") or a file
// path the searchers can read the snapshot from.
type IndexCompleteEvent struct {
	Version   string    `json:"version"`
	DocCount  int       `json:"doc_count"`
	TermCount int       `json:"term_count"`
	Checksum  string    `json:"checksum"`
	Location  string    `json:"location"`
	BuiltAt   time.Time `json:"built_at"`
}

// LocationStore marks a snapshot kept in the PostgreSQL snapshot store.
const LocationStore = "postgres"

func (e IndexCompleteEvent) Validate() error {
	if e.Version == "" {
		return fmt.Errorf("%w: index.complete event without version", apperrors.ErrInvalidInput)
	}
	if e.Location == "" {
		return fmt.Errorf("%w: index.complete event %s without location", apperrors.ErrInvalidInput, e.Version)
	}
	return nil
}

// PublishIndexComplete sends e keyed by version so every searcher sees
// announcements for a version in order.
func PublishIndexComplete(ctx context.Context, p kafka.Publisher, e IndexCompleteEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.BuiltAt.IsZero() {
		e.BuiltAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, kafka.Event{Key: e.Version, Value: e}); err != nil {
		return fmt.Errorf("announcing snapshot %s: %w", e.Version, err)
	}
	return nil
}

// DecodeIndexComplete parses and validates a raw index.complete message.
func DecodeIndexComplete(value []byte) (IndexCompleteEvent, error) {
	e, err := kafka.DecodeJSON[IndexCompleteEvent](value)
	if err != nil {
		return e, err
	}
	return e, e.Validate()
}
