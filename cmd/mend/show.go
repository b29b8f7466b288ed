package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/mend/pkg/artifacts"
	"github.com/entrhq/mend/pkg/config"
	"github.com/entrhq/mend/pkg/task"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a saved run record",
		Long: `Show the persisted record of a past run: the script version history,
execution outcomes, diagnoses, and repairs.

Without a task id, lists the most recent runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: showCommand,
	}

	cmd.Flags().Bool("json", false, "Print the raw run record as JSON")
	cmd.Flags().Int("limit", 10, "Number of runs to list")

	return cmd
}

func showCommand(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := artifacts.NewStore(cfg.ArtifactsDir)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		limit, _ := cmd.Flags().GetInt("limit")
		return listRuns(store, limit)
	}

	run, err := store.LoadRun(args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printRunSummary(run)

	dim := color.New(color.Faint).SprintFunc()
	fmt.Println()
	for i, exec := range run.Executions {
		result := "ok"
		if !exec.Success {
			result = exec.Error
		}
		fmt.Printf("  exec %d (v%d, %s): %s\n",
			i+1, exec.Version, exec.Duration.Round(time.Millisecond), result)
	}
	for _, d := range run.Diagnoses {
		fmt.Printf("  %s\n", dim(fmt.Sprintf("diagnosis v%d: %s (%.2f) %s",
			d.Version, d.Kind, d.Confidence, d.RootCause)))
	}
	return nil
}

func listRuns(store *artifacts.Store, limit int) error {
	ids, err := store.ListRuns()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No saved runs.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for i, id := range ids {
		if i == limit {
			break
		}
		run, err := store.LoadRun(id)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		status := red(string(run.FinalStatus))
		if run.FinalStatus == task.StatusSuccess {
			status = green(string(run.FinalStatus))
		}
		fmt.Printf("%s  %-8s  $%.4f  %s\n", id, status, run.TotalCost, run.Task.Description)
	}
	return nil
}
