// Package corpus reads a documentation source tree into index.Documents.
// Markdown, Jupyter notebooks, HTML and plain text are supported; each
// file becomes one document whose docname is its slash-separated path
// relative to the root, without extension.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Extractor pulls a title and plain text out of one file's contents.
// fallbackTitle is derived from the file name and is used when the content
// has no heading of its own.
type Extractor func(content []byte, fallbackTitle string) (title, text string, err error)

var extractors = map[string]Extractor{
	".md":       extractMarkdown,
	".markdown": extractMarkdown,
	".ipynb":    extractNotebook,
	".html":     extractHTML,
	".htm":      extractHTML,
	".txt":      extractPlain,
	".rst":      extractPlain,
}

// Options controls which files Load picks up.
type Options struct {
	// Extensions lists the file extensions to index, with leading dots.
	// Empty means every supported extension.
	Extensions []string
	// MaxConcurrency bounds the number of files read at once.
	MaxConcurrency int
}

// Load walks root and returns one Document per matching file, sorted by
// docname so document ids are stable across builds. Hidden directories and
// build output (names starting with "." or "_") are skipped.
func Load(ctx context.Context, root string, opts Options) ([]index.Document, error) {
	logger := slog.Default().With("component", "corpus", "root", root)

	wanted, err := extensionSet(opts.Extensions)
	if err != nil {
		return nil, err
	}
	files, err := collect(root, wanted)
	if err != nil {
		return nil, err
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	docs := make([]index.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := readDocument(root, rel)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(a, b int) bool { return docs[a].Docname < docs[b].Docname })
	for i := 1; i < len(docs); i++ {
		if docs[i].Docname == docs[i-1].Docname {
			return nil, fmt.Errorf("%w: %s and %s share docname %q",
				apperrors.ErrInvalidInput, docs[i-1].Filename, docs[i].Filename, docs[i].Docname)
		}
	}
	logger.Info("corpus loaded", "documents", len(docs))
	return docs, nil
}

func extensionSet(exts []string) (map[string]Extractor, error) {
	if len(exts) == 0 {
		return extractors, nil
	}
	set := make(map[string]Extractor, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		fn, ok := extractors[ext]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported extension %q", apperrors.ErrInvalidInput, ext)
		}
		set[ext] = fn
	}
	return set, nil
}

// collect returns the slash-separated relative paths of matching files.
func collect(root string, wanted map[string]Extractor) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := wanted[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus %s: %w", root, err)
	}
	return files, nil
}

func readDocument(root, rel string) (index.Document, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return index.Document{}, fmt.Errorf("reading %s: %w", rel, err)
	}
	ext := strings.ToLower(path.Ext(rel))
	docname := strings.TrimSuffix(rel, path.Ext(rel))
	title, text, err := extractors[ext](content, titleFromName(docname))
	if err != nil {
		return index.Document{}, fmt.Errorf("%w: extracting %s: %v", apperrors.ErrInvalidInput, rel, err)
	}
	return index.Document{
		Docname:  docname,
		Filename: rel,
		Title:    title,
		Text:     text,
	}, nil
}

// titleFromName turns "guides/getting_started" into "getting started".
func titleFromName(docname string) string {
	base := path.Base(docname)
	return strings.Join(strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-'
	}), " ")
}

func extractPlain(content []byte, fallbackTitle string) (string, string, error) {
	return fallbackTitle, string(content), nil
}
