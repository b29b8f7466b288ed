package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/mend/pkg/artifacts"
	"github.com/entrhq/mend/pkg/budget"
	"github.com/entrhq/mend/pkg/config"
	"github.com/entrhq/mend/pkg/diagnose"
	"github.com/entrhq/mend/pkg/executor"
	"github.com/entrhq/mend/pkg/llm/openai"
	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/orchestrator"
	"github.com/entrhq/mend/pkg/repair"
	"github.com/entrhq/mend/pkg/synth"
	"github.com/entrhq/mend/pkg/task"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task description>",
		Short: "Generate and run a browser automation task",
		Long: `Generate a browser automation script from the task description, execute
it, and self-heal on failure.

Examples:
  mend run "Go to example.com and verify the heading says Example Domain"
  mend run --url https://news.ycombinator.com "Open the first story"
  mend run --auto-heal=false "Fill the signup form on staging.example.com"`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("url", "", "Starting URL for the task")
	cmd.Flags().Bool("headless", false, "Run the browser headless")
	cmd.Flags().Bool("auto-heal", true, "Diagnose and repair failures automatically")
	cmd.Flags().Int("timeout", 0, "Per-execution timeout in seconds (0 = config default)")
	cmd.Flags().String("model", "", "Override the configured model")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.DefaultModel = model
	}
	if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
		cfg.ExecutionTimeoutSec = timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger("mend")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ledger, err := budget.NewSQLiteLedger(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open budget ledger: %w", err)
	}
	defer ledger.Close()

	governor := budget.NewGovernor(budget.Options{
		Pricing:       cfg.Pricing,
		FallbackModel: cfg.FallbackModel,
		DailyBudget:   cfg.DailyBudget,
		MaxCostPerRun: cfg.MaxCostPerRun,
		Ledger:        ledger,
	})

	provider, err := openai.NewProvider(cfg.APIKey,
		openai.WithModel(cfg.DefaultModel),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	store, err := artifacts.NewStore(cfg.ArtifactsDir)
	if err != nil {
		return err
	}

	runner, err := executor.NewRunner(executor.Options{
		BrowserType:      cfg.BrowserType,
		DefaultTimeoutMs: cfg.DefaultTimeoutMs,
		ViewportWidth:    cfg.ViewportWidth,
		ViewportHeight:   cfg.ViewportHeight,
	}, store, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser runtime: %w", err)
	}
	defer runner.Close()

	orch := orchestrator.New(
		synth.NewGenerator(provider, governor),
		runner,
		diagnose.NewClassifier(provider, governor, logger),
		repair.NewStrategist(provider, governor, cfg.MaxRepairAttempts, logger),
		store,
		orchestrator.Options{
			MaxRepairAttempts: cfg.MaxRepairAttempts,
			AutoHeal:          cfg.AutoHeal,
			Headless:          cfg.Headless,
			ExecutionTimeout:  time.Duration(cfg.ExecutionTimeoutSec) * time.Second,
		},
		logger,
	)

	// Ctrl-C cancels between attempts; a running execution finishes first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, _ := cmd.Flags().GetString("url")
	req := orchestrator.Request{
		Description: args[0],
		URL:         url,
	}
	if cmd.Flags().Changed("headless") {
		headless, _ := cmd.Flags().GetBool("headless")
		req.Headless = &headless
	}
	if cmd.Flags().Changed("auto-heal") {
		autoHeal, _ := cmd.Flags().GetBool("auto-heal")
		req.AutoHeal = &autoHeal
	}

	run := orch.Run(ctx, req)
	printRunSummary(run)
	fmt.Println()
	fmt.Print(governor.FormatReport())

	if run.FinalStatus != task.StatusSuccess {
		return fmt.Errorf("task %s failed", run.Task.ID)
	}
	return nil
}

// printRunSummary renders the run record for a terminal.
func printRunSummary(run *task.TestRun) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Println()
	fmt.Printf("Task %s\n", run.Task.ID)
	fmt.Printf("  %s\n", run.Task.Description)

	status := red(string(run.FinalStatus))
	if run.FinalStatus == task.StatusSuccess {
		status = green(string(run.FinalStatus))
	}
	fmt.Printf("  Status:   %s\n", status)
	fmt.Printf("  Versions: %d, executions: %d, repairs: %d\n",
		len(run.Scripts), len(run.Executions), len(run.Repairs))
	fmt.Printf("  Cost:     $%.4f\n", run.TotalCost)

	if reason, ok := run.Task.Metadata["failure_reason"].(string); ok {
		fmt.Printf("  Reason:   %s\n", reason)
	}

	for _, rec := range run.Repairs {
		fmt.Printf("  %s\n", dim(fmt.Sprintf("repair v%d -> v%d (%s): %s",
			rec.OriginalVersion, rec.NewVersion, rec.Kind, rec.Strategy)))
	}

	if last := run.LastExecution(); last != nil {
		if last.VideoPath != "" {
			fmt.Printf("  Video:    %s\n", last.VideoPath)
		}
		if n := len(last.Screenshots); n > 0 {
			fmt.Printf("  Shots:    %s\n", last.Screenshots[n-1])
		}
	}
}
