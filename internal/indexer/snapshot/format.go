// Package snapshot reads and writes the searchindex.js format consumed by
// browser-side search widgets: a single object wrapped in
// Search.setIndex(...) holding docnames, filenames, titles, terms and
// titleterms. Terms map to a bare document id when only one document
// contains them and to an ascending id list otherwise.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Snapshot is the decoded form of a searchindex.js file.
type Snapshot struct {
	Docnames   []string           `json:"docnames"`
	EnvVersion map[string]int     `json:"envversion,omitempty"`
	Filenames  []string           `json:"filenames"`
	Objects    json.RawMessage    `json:"objects"`
	ObjNames   json.RawMessage    `json:"objnames"`
	ObjTypes   json.RawMessage    `json:"objtypes"`
	Terms      map[string]DocRefs `json:"terms"`
	Titles     []string           `json:"titles"`
	TitleTerms map[string]DocRefs `json:"titleterms"`
}

// DocRefs is a posting list. It encodes as a bare integer when it holds a
// single id.
type DocRefs []int

func (d DocRefs) MarshalJSON() ([]byte, error) {
	if len(d) == 1 {
		return json.Marshal(d[0])
	}
	return json.Marshal([]int(d))
}

// UnmarshalJSON accepts an integer or an array of integers. null, alone or
// inside the array, is rejected rather than read as document 0.
func (d *DocRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []*int
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("%w: decoding document list: %v", apperrors.ErrInvalidSnapshot, err)
		}
		out := make(DocRefs, len(ids))
		for i, id := range ids {
			if id == nil {
				return fmt.Errorf("%w: null document id in %s", apperrors.ErrInvalidSnapshot, data)
			}
			out[i] = *id
		}
		*d = out
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null posting", apperrors.ErrInvalidSnapshot)
	}
	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("%w: decoding document id %s: %v", apperrors.ErrInvalidSnapshot, data, err)
	}
	*d = DocRefs{id}
	return nil
}

var emptyObject = json.RawMessage(`{}`)

// FromIndex converts an index into its snapshot form. env is copied into
// envversion and may be nil.
func FromIndex(ix *index.Index, env map[string]int) *Snapshot {
	t := ix.Tables()
	s := &Snapshot{
		Docnames:   t.Docnames,
		EnvVersion: env,
		Filenames:  t.Filenames,
		Objects:    emptyObject,
		ObjNames:   emptyObject,
		ObjTypes:   emptyObject,
		Terms:      make(map[string]DocRefs, len(t.Terms)),
		Titles:     t.Titles,
		TitleTerms: make(map[string]DocRefs, len(t.TitleTerms)),
	}
	for term, ids := range t.Terms {
		s.Terms[term] = ids
	}
	for term, ids := range t.TitleTerms {
		s.TitleTerms[term] = ids
	}
	return s
}

// ToIndex validates the snapshot and builds an Index from it. Keys that
// differ only in case (generators keep "The" next to "the") are folded
// into one lower-case term whose postings are the union of both.
func (s *Snapshot) ToIndex() (*index.Index, error) {
	return index.New(index.Tables{
		Docnames:   s.Docnames,
		Filenames:  s.Filenames,
		Titles:     s.Titles,
		Terms:      foldKeys(s.Terms),
		TitleTerms: foldKeys(s.TitleTerms),
	})
}

func foldKeys(in map[string]DocRefs) map[string][]int {
	out := make(map[string][]int, len(in))
	// Sorted iteration keeps the merge deterministic.
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		term := tokenizer.Normalize(k)
		out[term] = append(out[term], in[k]...)
	}
	return out
}
