package main

import (
	"fmt"
	"sort"

	"github.com/entrhq/mend/pkg/synth"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newExamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show example task descriptions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			bold := color.New(color.Bold).SprintFunc()

			names := make([]string, 0, len(synth.ExampleTasks))
			for name := range synth.ExampleTasks {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				fmt.Printf("%s\n  mend run %q\n\n", bold(name), synth.ExampleTasks[name])
			}
		},
	}
}
