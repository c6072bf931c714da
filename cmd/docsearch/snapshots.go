package main

import (
	"github.com/spf13/cobra"
)

var (
	snapshotsLimit int
	snapshotsKeep  int
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage snapshots stored in PostgreSQL",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotsList,
}

var snapshotsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest stored snapshots",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotsPrune,
}

func init() {
	snapshotsListCmd.Flags().IntVarP(&snapshotsLimit, "limit", "n", 20, "maximum number of snapshots to list")
	snapshotsPruneCmd.Flags().IntVar(&snapshotsKeep, "keep", 10, "number of snapshots to keep")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsPruneCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshotsList(cmd *cobra.Command, _ []string) error {
	s, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := s.List(cmd.Context(), snapshotsLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No snapshots stored.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("  %s  %s  docs=%d terms=%d size=%d\n",
			r.Version, r.CreatedAt.Format("2006-01-02 15:04:05"), r.DocCount, r.TermCount, r.RawSize)
	}
	return nil
}

func runSnapshotsPrune(cmd *cobra.Command, _ []string) error {
	s, closeStore, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	deleted, err := s.Prune(cmd.Context(), snapshotsKeep)
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d snapshots, kept the newest %d.\n", deleted, snapshotsKeep)
	return nil
}
