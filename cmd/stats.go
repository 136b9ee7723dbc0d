package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclinic/cliniq/internal/app"
	"github.com/openclinic/cliniq/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base and index statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	// Inspect existing state; never rebuild from a read-only command.
	a, err := app.SetupReadOnly(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	stats := a.Engine.Stats(ctx)
	fmt.Printf("Collection:       %s\n", cfg.CollectionName)
	fmt.Printf("Total documents:  %d\n", stats.TotalDocuments)
	fmt.Printf("Total intents:    %d\n", stats.TotalIntents)
	fmt.Printf("Retriever ready:  %t\n", stats.RetrieverInitialized)
	fmt.Printf("QA chain ready:   %t\n", stats.QAChainInitialized)
	return nil
}
