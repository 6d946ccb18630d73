package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kanzlei-labs/intake-service/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intake-service",
	Short: "AI-assisted case intake for traffic-law mandates",
	Long:  "Parses inbound emails and attachments, extracts structured case data via a hosted or local language model, validates the result, and files it or opens a review ticket.",
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
