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

// Event is one message to publish. Key picks the partition and Value is
// sent as JSON.
type Event struct {
	Key   string
	Value any
}

// Publisher is the producer surface used by the indexer and the analytics
// collector.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ Publisher = (*Producer)(nil)

type producerSettings struct {
	batchTimeout time.Duration
	metrics      *metrics.Metrics
}

// ProducerOption configures a Producer.
type ProducerOption func(*producerSettings)

// WithBatchTimeout bounds how long the writer holds messages before
// flushing a partial batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(s *producerSettings) { s.batchTimeout = d }
}

// WithProducerMetrics counts published messages per topic and result.
func WithProducerMetrics(m *metrics.Metrics) ProducerOption {
	return func(s *producerSettings) { s.metrics = m }
}

// NewProducer creates a Producer for topic. Writes wait for every in-sync
// replica.
func NewProducer(cfg config.KafkaConfig, topic string, opts ...ProducerOption) *Producer {
	settings := producerSettings{batchTimeout: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&settings)
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           settings.batchTimeout,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic, settings.metrics)
}

func newProducer(w messageWriter, topic string, m *metrics.Metrics) *Producer {
	return &Producer{
		writer:  w,
		topic:   topic,
		metrics: m,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes a single event and waits for the acknowledgement.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event first and writes them in one call, so
// an encoding error publishes nothing.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("encoding event %q: %w", event.Key, err)
		}
		msgs[i] = kafka.Message{
			Key:     []byte(event.Key),
			Value:   value,
			Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
		}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.record("publish_failed", len(msgs))
		p.logger.Error("publish failed", "messages", len(msgs), "error", err)
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	p.record("published", len(msgs))
	p.logger.Debug("published", "messages", len(msgs))
	return nil
}

func (p *Producer) record(result string, n int) {
	if p.metrics != nil {
		p.metrics.KafkaMessagesTotal.WithLabelValues(p.topic, result).Add(float64(n))
	}
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
