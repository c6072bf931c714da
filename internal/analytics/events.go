// Package analytics records what users search for: the search handler
// tracks a QueryEvent per request, the BatchCollector ships them to Kafka
// in bulk, and the Aggregator keeps running totals served over HTTP.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
)

// QueryEvent describes one answered search.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Version   string    `json:"version"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Tracker accepts query events. Implementations must not block.
type Tracker interface {
	Track(event QueryEvent)
}

// Fanout sends every event to each tracker in turn.
type Fanout []Tracker

func (f Fanout) Track(event QueryEvent) {
	for _, t := range f {
		t.Track(event)
	}
}
