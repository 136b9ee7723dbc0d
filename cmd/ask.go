package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclinic/cliniq/internal/app"
	"github.com/openclinic/cliniq/internal/config"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// runAsk answers one question and exits. Useful for smoke-testing the
// pipeline without starting the HTTP server.
func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

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

	question := strings.Join(args, " ")
	answer := a.Engine.Ask(ctx, question, nil)

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Printf("Confidence: %s\n", answer.Confidence)
		fmt.Println("Sources:")
		for _, src := range answer.Sources {
			fmt.Printf("  - %s (%.3f)\n", src.Tag, src.RelevanceScore)
		}
	}
	if len(answer.FollowUpSuggestions) > 0 {
		fmt.Println()
		fmt.Println("You could also ask:")
		for _, s := range answer.FollowUpSuggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}
