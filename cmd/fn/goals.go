package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/fieldnote/internal/store"
)

func newGoalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Inspect the goal bank",
	}

	cmd.AddCommand(newGoalsListCmd())
	return cmd
}

func newGoalsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals in the goal bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoalsList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to fieldnote config file")
	return cmd
}

func runGoalsList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	goals, err := store.NewGoals(gormDB).Goals(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(goals) == 0 {
		fmt.Fprintln(out, "No goals. Add goals to the config and run `fn db init`.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tDATA TYPE\tSTATUS\tPROMPTS")
	for _, g := range goals {
		category := g.Category
		if category == "" {
			category = "-"
		}
		prompts := "-"
		if len(g.Prompts) > 0 {
			prompts = strings.Join(g.Prompts, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", g.ID, g.Title, category, g.DataType, g.Status, prompts)
	}
	w.Flush()
	return nil
}
