package index

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Build indexes docs in one pass. Document ids are slice positions. Text
// feeds the terms table and Title feeds the titleterms table; a document is
// listed at most once per term.
func Build(docs []Document) (*Index, error) {
	ix := &Index{
		docnames:   make([]string, len(docs)),
		filenames:  make([]string, len(docs)),
		titles:     make([]string, len(docs)),
		terms:      make(map[string][]int),
		titleTerms: make(map[string][]int),
	}
	seen := make(map[string]int, len(docs))
	for id, doc := range docs {
		name := strings.TrimSpace(doc.Docname)
		if name == "" {
			return nil, fmt.Errorf("%w: document %d has no docname", apperrors.ErrInvalidInput, id)
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: docname %q used by documents %d and %d", apperrors.ErrInvalidInput, name, prev, id)
		}
		seen[name] = id

		filename := doc.Filename
		if filename == "" {
			filename = name
		}
		ix.docnames[id] = name
		ix.filenames[id] = filename
		ix.titles[id] = doc.Title

		// ids are visited in ascending order and Terms deduplicates per
		// document, so every posting list stays sorted and unique.
		for _, term := range tokenizer.Terms(doc.Text) {
			ix.terms[term] = append(ix.terms[term], id)
		}
		for _, term := range tokenizer.Terms(doc.Title) {
			ix.titleTerms[term] = append(ix.titleTerms[term], id)
		}
	}
	return ix, nil
}
