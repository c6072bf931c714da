// Command docsearch builds, checks and queries searchindex.js snapshots.
//
// Usage:
//
//	docsearch build --source docs --out _build/searchindex.js
//	docsearch lookup numpy
//	docsearch search "numpy OR array"
//	docsearch publish
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docsearch",
	Short: "Build and query static documentation search indexes",
	Long: `docsearch turns a documentation tree into a searchindex.js snapshot
and answers term lookups and boolean queries against it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logger.SetupWriter(cmd.ErrOrStderr(), level, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
