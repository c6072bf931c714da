package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

var (
	searchSnapshot string
	searchLimit    int
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a boolean query against a snapshot",
	Long: `Matches documents whose text or title contains the query terms.
Terms are combined with AND unless the query says OR; NOT or a leading
'-' excludes a term. Results are in document order.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchSnapshot, "snapshot", "", "snapshot path (default from config)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results; 0 for all")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ix, err := loadSnapshot(searchSnapshot)
	if err != nil {
		return err
	}
	result, err := executor.Run(cmd.Context(), ix, parser.Parse(args[0]), searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(result.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	cmd.Printf("%d of %d matching documents:\n\n", len(result.Results), result.TotalHits)
	for _, hit := range result.Results {
		marker := ""
		if hit.TitleMatch {
			marker = " *"
		}
		cmd.Printf("  [%d] %s%s\n", hit.ID, hit.Title, marker)
		cmd.Printf("      %s\n", hit.Filename)
	}
	return nil
}
