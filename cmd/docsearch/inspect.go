package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/snapshot"
)

var (
	validateSnapshot string
	inspectSnapshot  string
	inspectTerms     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a snapshot loads",
	Long: `Decodes a snapshot and checks that every term refers to an
existing document. Exits non-zero when it does not.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Print the documents in a snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	validateCmd.Flags().StringVar(&validateSnapshot, "snapshot", "", "snapshot path (default from config)")
	inspectCmd.Flags().StringVar(&inspectSnapshot, "snapshot", "", "snapshot path (default from config)")
	inspectCmd.Flags().BoolVar(&inspectTerms, "terms", false, "also list every text and title term")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(inspectCmd)
}

func pathArg(args []string, flagValue string) string {
	if len(args) == 1 {
		return args[0]
	}
	return flagValue
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := snapshotPath(pathArg(args, validateSnapshot))
	ix, err := snapshot.Load(path)
	if err != nil {
		return fmt.Errorf("%s is not a valid snapshot: %w", path, err)
	}
	cmd.Printf("%s: ok (%d documents, %d terms, %d title terms)\n",
		path, ix.DocCount(), ix.TermCount(), ix.TitleTermCount())
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ix, err := loadSnapshot(pathArg(args, inspectSnapshot))
	if err != nil {
		return err
	}
	cmd.Printf("Documents: %d\n", ix.DocCount())
	cmd.Printf("Terms:     %d\n", ix.TermCount())
	cmd.Printf("Titles:    %d\n\n", ix.TitleTermCount())
	for id := 0; id < ix.DocCount(); id++ {
		info, err := ix.Document(id)
		if err != nil {
			return err
		}
		cmd.Printf("  [%d] %-40s %s\n", info.ID, info.Docname, info.Title)
	}
	if !inspectTerms {
		return nil
	}
	cmd.Println()
	cmd.Println("Terms:")
	for _, term := range ix.Terms() {
		cmd.Printf("  %s %v\n", term, ix.Lookup(term))
	}
	cmd.Println()
	cmd.Println("Title terms:")
	for _, term := range ix.TitleTerms() {
		cmd.Printf("  %s %v\n", term, ix.LookupTitleTerm(term))
	}
	return nil
}
