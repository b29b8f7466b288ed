package main

import (
	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags.
var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mend",
		Short: "Self-healing browser automation from natural language",
		Long: `Mend turns a natural-language description into a browser automation
script, runs it, and when it fails, diagnoses the failure and repairs
the script automatically within a configurable attempt and cost budget.

Every run produces a persistent record: the full script version history,
execution outcomes, diagnoses, repairs, and cost.`,
		Version: version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newBudgetCommand())
	cmd.AddCommand(newExamplesCommand())

	return cmd
}
