// Package parser turns a free-text query into a QueryPlan. Terms are
// combined with AND unless the query says OR; NOT and a leading '-'
// exclude the following word.
package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

// Parse builds a plan from query. Operators are case-insensitive and the
// last AND/OR wins. Words are run through the tokenizer, so "cache-line"
// contributes the two terms "cache" and "line". Repeated terms are kept once.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]struct{})
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false
		if len(word) > 1 && word[0] == '-' {
			exclude = true
			word = word[1:]
		}
		for _, term := range tokenizer.Terms(word) {
			key := term
			if exclude {
				key = "-" + term
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if exclude {
				plan.ExcludeTerms = append(plan.ExcludeTerms, term)
			} else {
				plan.Terms = append(plan.Terms, term)
			}
		}
	}
	return plan
}

// Empty reports whether the plan has no positive terms and therefore
// matches nothing.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Canonical returns an order-independent description of the plan:
// "cache scheduler" and "Scheduler cache" share one canonical form.
func (p *QueryPlan) Canonical() string {
	terms := append([]string(nil), p.Terms...)
	excludes := append([]string(nil), p.ExcludeTerms...)
	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{p.Type.String(), strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}
