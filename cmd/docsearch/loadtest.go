package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var (
	loadURL          string
	loadConcurrency  int
	loadDuration     time.Duration
	loadQueries      []string
	loadtestSnapshot string
	loadSample       int
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive concurrent queries against a running search service",
	Long: `Sends search requests from concurrent workers for a fixed duration
and reports throughput, latency percentiles and status codes. Queries come
from --query, or are sampled from the terms of a snapshot.`,
	Args: cobra.NoArgs,
	RunE: runLoadtest,
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&loadURL, "url", "http://localhost:8080", "base URL of the search service")
	f.IntVarP(&loadConcurrency, "concurrency", "c", 10, "number of concurrent workers")
	f.DurationVarP(&loadDuration, "duration", "d", 30*time.Second, "test duration")
	f.StringArrayVarP(&loadQueries, "query", "q", nil, "query to send; repeatable")
	f.StringVar(&loadtestSnapshot, "snapshot", "", "snapshot to sample queries from (default from config)")
	f.IntVar(&loadSample, "sample", 50, "number of terms sampled from the snapshot")
	rootCmd.AddCommand(loadtestCmd)
}

type loadStats struct {
	total         atomic.Int64
	success       atomic.Int64
	failures      atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *loadStats) record(d time.Duration, statusCode int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, d)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	queries := loadQueries
	if len(queries) == 0 {
		ix, err := loadSnapshot(loadtestSnapshot)
		if err != nil {
			return fmt.Errorf("no --query given: %w", err)
		}
		queries = sampleQueries(ix.Terms(), loadSample)
	}
	if len(queries) == 0 {
		return errors.New("no queries to send")
	}

	cmd.Println("=== docsearch load test ===")
	cmd.Printf("Target:      %s\n", loadURL)
	cmd.Printf("Concurrency: %d\n", loadConcurrency)
	cmd.Printf("Duration:    %s\n", loadDuration)
	cmd.Printf("Queries:     %d unique\n\n", len(queries))

	ctx, cancel := context.WithTimeout(cmd.Context(), loadDuration)
	defer cancel()
	stats := drive(ctx, loadURL, loadConcurrency, queries)
	printLoadReport(cmd, stats, loadDuration)
	if stats.total.Load() == 0 {
		return errors.New("no requests completed; is the service running?")
	}
	return nil
}

// sampleQueries picks up to n terms, pairing every third one with its
// neighbour so multi-term intersections are exercised too.
func sampleQueries(terms []string, n int) []string {
	if len(terms) == 0 || n <= 0 {
		return nil
	}
	shuffled := append([]string(nil), terms...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if len(shuffled) > n {
		shuffled = shuffled[:n]
	}
	queries := make([]string, 0, len(shuffled))
	for i, t := range shuffled {
		if i%3 == 2 {
			t = shuffled[i-1] + " " + t
		}
		queries = append(queries, t)
	}
	return queries
}

func drive(ctx context.Context, baseURL string, concurrency int, queries []string) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			next := worker
			for ctx.Err() == nil {
				query := queries[next%len(queries)]
				next++

				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", baseURL, url.QueryEscape(query))
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func printLoadReport(cmd *cobra.Command, stats *loadStats, duration time.Duration) {
	total := stats.total.Load()
	cmd.Println("=== Results ===")
	cmd.Printf("Total Requests:  %d\n", total)
	cmd.Printf("Successful:      %d\n", stats.success.Load())
	cmd.Printf("Errors:          %d\n", stats.failures.Load())
	if total > 0 {
		cmd.Printf("Error Rate:      %.2f%%\n", float64(stats.failures.Load())/float64(total)*100)
		cmd.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	stats.latenciesMu.Unlock()
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		cmd.Println()
		cmd.Println("=== Latency ===")
		cmd.Printf("Min:    %s\n", latencies[0])
		cmd.Printf("Avg:    %s\n", avg)
		cmd.Printf("P50:    %s\n", percentile(latencies, 50))
		cmd.Printf("P95:    %s\n", percentile(latencies, 95))
		cmd.Printf("P99:    %s\n", percentile(latencies, 99))
		cmd.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	cmd.Println()
	cmd.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		cmd.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
