package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
)

var (
	lookupSnapshot string
	lookupTitle    bool
	lookupJSON     bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [term]",
	Short: "List the documents containing a term",
	Long: `Looks a single term up in the snapshot. The term is lower-cased
first; --title searches the title table instead of the text table.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().StringVar(&lookupSnapshot, "snapshot", "", "snapshot path (default from config)")
	lookupCmd.Flags().BoolVar(&lookupTitle, "title", false, "search title terms")
	lookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(lookupCmd)
}

func snapshotPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Index.SnapshotPath
}

func loadSnapshot(flagValue string) (*index.Index, error) {
	path := snapshotPath(flagValue)
	ix, err := snapshot.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return ix, nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	ix, err := loadSnapshot(lookupSnapshot)
	if err != nil {
		return err
	}
	term := args[0]
	ids := ix.Lookup(term)
	if lookupTitle {
		ids = ix.LookupTitleTerm(term)
	}

	docs := make([]index.DocInfo, 0, len(ids))
	for _, id := range ids {
		info, err := ix.Document(id)
		if err != nil {
			return err
		}
		docs = append(docs, info)
	}

	if lookupJSON {
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("  [%d] %s (%s)\n", d.ID, d.Title, d.Filename)
	}
	return nil
}
