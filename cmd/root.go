package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "match-cli",
	Short: "Product identity matching for creator video commerce",
	Long:  "Extracts product attributes from video frames via Claude vision, fuses them into a reference profile, and ranks shopping candidates against it.",
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
