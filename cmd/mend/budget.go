package main

import (
	"fmt"
	"time"

	"github.com/entrhq/mend/pkg/budget"
	"github.com/entrhq/mend/pkg/config"
	"github.com/spf13/cobra"
)

func newBudgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show today's LLM spend against the daily budget",
		Args:  cobra.NoArgs,
		RunE:  budgetCommand,
	}
	return cmd
}

func budgetCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ledger, err := budget.NewSQLiteLedger(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open budget ledger: %w", err)
	}
	defer ledger.Close()

	day := time.Now().Format("2006-01-02")
	total, err := ledger.Total(day)
	if err != nil {
		return err
	}

	fmt.Printf("Spend for %s: $%.4f of $%.2f daily budget\n", day, total, cfg.DailyBudget)
	fmt.Printf("Per-run ceiling: $%.2f\n", cfg.MaxCostPerRun)
	return nil
}
