package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

const publishTimeout = 5 * time.Second

// BatchCollector buffers query events and publishes them to Kafka when a
// batch fills up or the flush interval passes. Only the loop started by
// Start publishes; Track never blocks on Kafka.
type BatchCollector struct {
	publisher     kafka.Publisher
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	full          chan struct{}
	done          chan struct{}
	started       atomic.Bool
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []kafka.Event
}

var _ Tracker = (*BatchCollector)(nil)

// NewBatchCollector keeps at most three batches buffered while Kafka is
// unavailable; older events are dropped first.
func NewBatchCollector(publisher kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		batchSize:     batchSize,
		maxBuffered:   3 * batchSize,
		flushInterval: flushInterval,
		full:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
		buffer:        make([]kafka.Event, 0, batchSize),
	}
}

// Start launches the flush loop. The buffer is flushed one last time when
// ctx is cancelled. Calls after the first do nothing.
func (bc *BatchCollector) Start(ctx context.Context) {
	if !bc.started.CompareAndSwap(false, true) {
		return
	}
	go bc.loop(ctx)
	bc.logger.Info("analytics collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-bc.full:
		case <-ctx.Done():
			bc.flush(context.WithoutCancel(ctx))
			return
		}
		bc.flush(ctx)
	}
}

// Track buffers event, keyed by query so one query's events land on one
// partition in order.
func (bc *BatchCollector) Track(event QueryEvent) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: event.Query, Value: event})
	bc.trimLocked()
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop started by Start to finish. Without a
// running loop it returns at once.
func (bc *BatchCollector) Close() {
	if !bc.started.Load() {
		return
	}
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "events", len(batch), "error", err)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		bc.trimLocked()
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}

func (bc *BatchCollector) trimLocked() {
	if over := len(bc.buffer) - bc.maxBuffered; over > 0 {
		bc.buffer = bc.buffer[over:]
		bc.logger.Warn("analytics buffer full, oldest events dropped", "dropped", over)
	}
}
