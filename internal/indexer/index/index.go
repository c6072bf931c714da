// Package index holds the immutable inverted index: term → document ids,
// title term → document ids, and document id → title, docname and
// filename. An Index is never modified after construction, so any number of
// goroutines may read it without locking.
package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Index struct {
	docnames   []string
	filenames  []string
	titles     []string
	terms      map[string][]int
	titleTerms map[string][]int
}

// Tables is the raw form of an index as stored in a snapshot. Posting
// lists may be unsorted or contain duplicates; New normalises them.
type Tables struct {
	Docnames   []string
	Filenames  []string
	Titles     []string
	Terms      map[string][]int
	TitleTerms map[string][]int
}

// New builds an Index from decoded snapshot tables. It fails with
// ErrInvalidSnapshot when a posting references a document that does not
// exist or the metadata tables disagree in length. The input is copied.
func New(t Tables) (*Index, error) {
	n := len(t.Docnames)
	filenames := t.Filenames
	if len(filenames) == 0 && n > 0 {
		filenames = t.Docnames
	}
	titles := t.Titles
	if len(titles) == 0 && n > 0 {
		titles = make([]string, n)
	}
	if len(filenames) != n {
		return nil, fmt.Errorf("%w: %d docnames but %d filenames", apperrors.ErrInvalidSnapshot, n, len(filenames))
	}
	if len(titles) != n {
		return nil, fmt.Errorf("%w: %d docnames but %d titles", apperrors.ErrInvalidSnapshot, n, len(titles))
	}

	ix := &Index{
		docnames:   append([]string(nil), t.Docnames...),
		filenames:  append([]string(nil), filenames...),
		titles:     append([]string(nil), titles...),
		terms:      make(map[string][]int, len(t.Terms)),
		titleTerms: make(map[string][]int, len(t.TitleTerms)),
	}
	for term, ids := range t.Terms {
		ix.terms[term] = normalizeIDs(ids)
	}
	for term, ids := range t.TitleTerms {
		ix.titleTerms[term] = normalizeIDs(ids)
	}
	if err := ix.Validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Validate checks referential integrity: every posting names an existing
// document and no term is empty.
func (ix *Index) Validate() error {
	if err := checkPostings("terms", ix.terms, len(ix.docnames)); err != nil {
		return err
	}
	return checkPostings("titleterms", ix.titleTerms, len(ix.docnames))
}

func checkPostings(table string, postings map[string][]int, docCount int) error {
	for term, ids := range postings {
		if term == "" {
			return fmt.Errorf("%w: empty term in %s", apperrors.ErrInvalidSnapshot, table)
		}
		for _, id := range ids {
			if id < 0 || id >= docCount {
				return fmt.Errorf("%w: %s entry %q references document %d, corpus has %d documents",
					apperrors.ErrInvalidSnapshot, table, term, id, docCount)
			}
		}
	}
	return nil
}

// Lookup returns the ids of the documents whose text contains term, in
// ascending order. The term is normalised first. Unknown terms yield an
// empty, non-nil slice.
func (ix *Index) Lookup(term string) []int {
	return lookup(ix.terms, term)
}

// LookupTitleTerm is Lookup restricted to words that appear in titles.
func (ix *Index) LookupTitleTerm(term string) []int {
	return lookup(ix.titleTerms, term)
}

func lookup(postings map[string][]int, term string) []int {
	ids := postings[tokenizer.Normalize(term)]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

func (ix *Index) LookupTitle(id int) (string, error) {
	if err := ix.checkID(id); err != nil {
		return "", err
	}
	return ix.titles[id], nil
}

// LookupPath returns the source filename of a document.
func (ix *Index) LookupPath(id int) (string, error) {
	if err := ix.checkID(id); err != nil {
		return "", err
	}
	return ix.filenames[id], nil
}

func (ix *Index) LookupDocname(id int) (string, error) {
	if err := ix.checkID(id); err != nil {
		return "", err
	}
	return ix.docnames[id], nil
}

// Document returns all metadata for id.
func (ix *Index) Document(id int) (DocInfo, error) {
	if err := ix.checkID(id); err != nil {
		return DocInfo{}, err
	}
	return DocInfo{
		ID:       id,
		Docname:  ix.docnames[id],
		Filename: ix.filenames[id],
		Title:    ix.titles[id],
	}, nil
}

func (ix *Index) checkID(id int) error {
	if id < 0 || id >= len(ix.docnames) {
		return fmt.Errorf("%w: id %d", apperrors.ErrDocumentNotFound, id)
	}
	return nil
}

func (ix *Index) DocCount() int {
	return len(ix.docnames)
}

func (ix *Index) TermCount() int {
	return len(ix.terms)
}

func (ix *Index) TitleTermCount() int {
	return len(ix.titleTerms)
}

// Terms returns every indexed term in sorted order.
func (ix *Index) Terms() []string {
	return sortedKeys(ix.terms)
}

// TitleTerms returns every title term in sorted order.
func (ix *Index) TitleTerms() []string {
	return sortedKeys(ix.titleTerms)
}

// Tables returns a deep copy of the index contents, suitable for
// serialisation.
func (ix *Index) Tables() Tables {
	return Tables{
		Docnames:   append([]string(nil), ix.docnames...),
		Filenames:  append([]string(nil), ix.filenames...),
		Titles:     append([]string(nil), ix.titles...),
		Terms:      copyPostings(ix.terms),
		TitleTerms: copyPostings(ix.titleTerms),
	}
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyPostings(m map[string][]int) map[string][]int {
	out := make(map[string][]int, len(m))
	for term, ids := range m {
		out[term] = append([]int(nil), ids...)
	}
	return out
}

// normalizeIDs returns a sorted copy of ids without duplicates.
func normalizeIDs(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	sort.Ints(out)
	w := 0
	for i, id := range out {
		if i > 0 && id == out[w-1] {
			continue
		}
		out[w] = id
		w++
	}
	return out[:w]
}
