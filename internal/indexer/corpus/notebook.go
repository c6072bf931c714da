package corpus

import (
	"encoding/json"
	"fmt"
	"strings"
)

type notebook struct {
	Cells []notebookCell `json:"cells"`
}

type notebookCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// text joins a cell source, which nbformat stores either as one string or
// as a list of lines.
func (c notebookCell) text() (string, error) {
	if len(c.Source) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(c.Source, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(c.Source, &lines); err != nil {
		return "", fmt.Errorf("decoding cell source: %w", err)
	}
	return strings.Join(lines, ""), nil
}

// extractNotebook indexes markdown cells as Markdown and keeps code cells
// verbatim. Outputs are ignored.
func extractNotebook(content []byte, fallbackTitle string) (string, string, error) {
	var nb notebook
	if err := json.Unmarshal(content, &nb); err != nil {
		return "", "", fmt.Errorf("decoding notebook: %w", err)
	}
	var (
		title string
		b     strings.Builder
	)
	for _, cell := range nb.Cells {
		src, err := cell.text()
		if err != nil {
			return "", "", err
		}
		switch cell.CellType {
		case "markdown":
			t, text := stripMarkdown(src, true)
			if title == "" {
				title = t
			}
			b.WriteString(text)
		case "code":
			b.WriteString(src)
			b.WriteByte('\n')
		}
	}
	if title == "" {
		title = fallbackTitle
	}
	return title, b.String(), nil
}
