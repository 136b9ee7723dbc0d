package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclinic/cliniq/internal/app"
	"github.com/openclinic/cliniq/internal/config"
	"github.com/openclinic/cliniq/internal/intent"
)

var resetFirst bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index from the knowledge base file",
	RunE:  runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&resetFirst, "reset", false, "hard-delete persisted index state before rebuilding")
	rootCmd.AddCommand(reindexCmd)
}

// runReindex forces a rebuild of the vector index and reports the result.
func runReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Setup rebuilds when ForceRecreate is set; that's exactly what we want.
	cfg.ForceRecreate = true

	logger := newLogger(cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if resetFirst {
		if err := a.Store.Reset(ctx); err != nil {
			return fmt.Errorf("resetting index: %w", err)
		}
		if err := a.Store.Create(ctx, intent.ComposeAll(a.Intents)); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
	}

	report, err := a.Store.CheckDuplicates(ctx)
	if err != nil {
		return fmt.Errorf("checking duplicates: %w", err)
	}

	fmt.Printf("Indexed %d documents from %d intents (collection %q)\n",
		a.Store.Count(ctx), len(a.Intents), cfg.CollectionName)
	if report.DuplicateGroups > 0 {
		fmt.Printf("Warning: %d duplicate content groups detected\n", report.DuplicateGroups)
		for _, d := range report.Duplicates {
			fmt.Printf("  - %q x%d\n", d.ContentPreview, d.Count)
		}
	}
	return nil
}
