// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Events are JSON on the wire; the consumer hands raw
// values to a MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// MessageHandler is a callback invoked for each Kafka message. Returning an
// error leaves the offset uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the part of *kafka.Reader the consumer loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader       messageReader
	topic        string
	handler      MessageHandler
	metrics      *metrics.Metrics
	fetchBackoff time.Duration
	logger       *slog.Logger
}

type consumerSettings struct {
	startOffset int64
	metrics     *metrics.Metrics
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerSettings)

// FromEarliest makes a new consumer group start at the oldest retained
// message instead of only new ones.
func FromEarliest() ConsumerOption {
	return func(s *consumerSettings) { s.startOffset = kafka.FirstOffset }
}

// WithConsumerMetrics counts consumed messages per topic and result.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(s *consumerSettings) { s.metrics = m }
}

// NewConsumer creates a Consumer for topic in cfg.ConsumerGroup.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	settings := consumerSettings{startOffset: kafka.LastOffset}
	for _, opt := range opts {
		opt(&settings)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: settings.startOffset,
	})
	return newConsumer(r, topic, handler, settings.metrics)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, m *metrics.Metrics) *Consumer {
	return &Consumer{
		reader:       r,
		topic:        topic,
		handler:      handler,
		metrics:      m,
		fetchBackoff: time.Second,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches and processes messages until ctx is cancelled. A message
// whose handler fails is logged and skipped without a commit, so the group
// sees it again after a rebalance or restart.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err, "retry_in", c.fetchBackoff)
			select {
			case <-ctx.Done():
			case <-time.After(c.fetchBackoff):
			}
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			c.record("failed")
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			c.record("commit_failed")
			continue
		}
		c.record("processed")
	}
}

func (c *Consumer) record(result string) {
	if c.metrics != nil {
		c.metrics.KafkaMessagesTotal.WithLabelValues(c.topic, result).Inc()
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
