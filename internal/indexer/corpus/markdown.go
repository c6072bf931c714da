package corpus

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// mdRole matches the role prefix of a MyST role such as {ref}`target`;
// the backticked part has already become a code span.
var mdRole = regexp.MustCompile(`\{[a-z][a-z0-9:-]*\}`)

// extractMarkdown strips markup from a Markdown (or MyST) page. The first
// level-one heading becomes the title. Code blocks are dropped unless they
// are directives such as ```{note}, whose bodies are prose.
func extractMarkdown(content []byte, fallbackTitle string) (string, string, error) {
	title, text := stripMarkdown(string(content), false)
	if title == "" {
		title = fallbackTitle
	}
	return title, text, nil
}

// stripMarkdown returns the first level-one heading and the plain text of
// src, one line per block. keepCode retains the contents of code blocks.
func stripMarkdown(src string, keepCode bool) (string, string) {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var title string
	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.FencedCodeBlock:
			body := blockLines(n, source)
			var info string
			if n.Info != nil {
				info = string(n.Info.Segment.Value(source))
			}
			if strings.HasPrefix(info, "{") {
				_, prose := stripMarkdown(body, keepCode)
				b.WriteString(prose)
			} else if keepCode {
				writeLines(&b, body)
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if keepCode {
				writeLines(&b, blockLines(n, source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		if !hasInlineChildren(n) {
			return ast.WalkContinue, nil
		}
		line := inlineText(n, source)
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && title == "" {
			title = strings.Join(strings.Fields(line), " ")
		}
		writeLines(&b, line)
		return ast.WalkSkipChildren, nil
	})
	return title, b.String()
}

func hasInlineChildren(n ast.Node) bool {
	return n.Type() == ast.TypeBlock && n.FirstChild() != nil && n.FirstChild().Type() == ast.TypeInline
}

// inlineText concatenates the text under n, leaving out link targets and
// raw HTML.
func inlineText(n ast.Node, source []byte) string {
	var b bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.RawHTML, *ast.AutoLink:
			b.WriteByte(' ')
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return mdRole.ReplaceAllString(b.String(), "")
}

func blockLines(n ast.Node, source []byte) string {
	var b bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

// writeLines appends the non-empty lines of s. Lines starting with ':' are
// MyST directive options or colon fences and are skipped.
func writeLines(b *strings.Builder, s string) {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
}
