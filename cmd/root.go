// Package cmd implements the cliniq command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cliniq",
	Short: "cliniq - clinic FAQ answering service",
	Long: `cliniq answers patient questions about a clinic (hours, location,
insurance, policies, visit preparation) from a curated knowledge base.

Questions are matched against an embedded vector index and answered by an
LLM grounded in the retrieved documents. Running cliniq without a
subcommand starts the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
