// Package executor evaluates a QueryPlan against the served snapshot.
// Matching is boolean over both the text and the title tables; hits are
// returned in ascending document id order with no scoring.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/live"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

// Hit is one matching document.
type Hit struct {
	ID         int    `json:"id" msgpack:"id"`
	Docname    string `json:"docname" msgpack:"docname"`
	Filename   string `json:"filename" msgpack:"filename"`
	Title      string `json:"title" msgpack:"title"`
	TitleMatch bool   `json:"title_match" msgpack:"title_match"`
}

type SearchResult struct {
	Query     string         `json:"query" msgpack:"query"`
	Version   string         `json:"version" msgpack:"version"`
	TotalHits int            `json:"total_hits" msgpack:"total_hits"`
	Results   []Hit          `json:"results" msgpack:"results"`
	TermStats map[string]int `json:"term_stats" msgpack:"term_stats"`
}

// IndexSource yields the snapshot a query runs against.
type IndexSource interface {
	Current() (*live.Loaded, error)
}

type Executor struct {
	source IndexSource
	logger *slog.Logger
}

func New(source IndexSource) *Executor {
	return &Executor{
		source: source,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute runs plan and returns at most limit hits. TotalHits counts every
// match before the limit is applied. A non-positive limit returns all hits.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	loaded, err := e.source.Current()
	if err != nil {
		return nil, err
	}
	result, err := Run(ctx, loaded.Index, plan, limit)
	if err != nil {
		return nil, err
	}
	result.Version = loaded.Version
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"version", loaded.Version,
		"total_hits", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// Run evaluates plan against ix. It is the snapshot-independent core of
// Execute.
func Run(ctx context.Context, ix *index.Index, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Query:     plan.RawQuery,
		Results:   []Hit{},
		TermStats: make(map[string]int, len(plan.Terms)),
	}
	if plan.Empty() {
		return result, nil
	}

	postingsPerTerm := make([][]int, 0, len(plan.Terms))
	titleMatches := []int{}
	for _, term := range plan.Terms {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("executing query: %w", err)
		}
		inTitle := ix.LookupTitleTerm(term)
		postings := union(ix.Lookup(term), inTitle)
		result.TermStats[term] = len(postings)
		postingsPerTerm = append(postingsPerTerm, postings)
		titleMatches = union(titleMatches, inTitle)
	}

	var candidates []int
	switch plan.Type {
	case parser.QueryOR:
		candidates = []int{}
		for _, postings := range postingsPerTerm {
			candidates = union(candidates, postings)
		}
	default:
		candidates = intersectAll(postingsPerTerm)
	}
	for _, term := range plan.ExcludeTerms {
		candidates = subtract(candidates, ix.Lookup(term))
		candidates = subtract(candidates, ix.LookupTitleTerm(term))
	}

	result.TotalHits = len(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	titleSet := make(map[int]struct{}, len(titleMatches))
	for _, id := range titleMatches {
		titleSet[id] = struct{}{}
	}
	for _, id := range candidates {
		info, err := ix.Document(id)
		if err != nil {
			return nil, err
		}
		_, inTitle := titleSet[id]
		result.Results = append(result.Results, Hit{
			ID:         info.ID,
			Docname:    info.Docname,
			Filename:   info.Filename,
			Title:      info.Title,
			TitleMatch: inTitle,
		})
	}
	return result, nil
}

// intersectAll intersects sorted posting lists, starting from the shortest.
func intersectAll(lists [][]int) []int {
	if len(lists) == 0 {
		return []int{}
	}
	shortest := 0
	for i, l := range lists {
		if len(l) < len(lists[shortest]) {
			shortest = i
		}
	}
	out := lists[shortest]
	for i, l := range lists {
		if i == shortest {
			continue
		}
		out = intersect(out, l)
		if len(out) == 0 {
			break
		}
	}
	return out
}

func intersect(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// subtract returns the ids of a that are not in b.
func subtract(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	out := make([]int, 0, len(a))
	j := 0
	for _, id := range a {
		for j < len(b) && b[j] < id {
			j++
		}
		if j < len(b) && b[j] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
