package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedsync-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Daily vendor sales-feed pipeline",
	Long:  "Downloads the daily vendor archive over SFTP, normalizes and validates the CSV inside, stages it locally, re-uploads the cleaned file, and triggers the remote import script.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
