package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/fieldnote/internal/record"
	"github.com/zulandar/fieldnote/internal/store"
)

const timeLayout = "2006-01-02 15:04"

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse saved sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var (
		configPath string
		student    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions for a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath, student)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to fieldnote config file")
	cmd.Flags().StringVar(&student, "student", "", "student id (defaults to the configured student)")
	return cmd
}

func runSessionsList(cmd *cobra.Command, configPath, student string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if student == "" {
		student = cfg.Student
	}

	sessions, err := store.NewSessions(gormDB).LoadAll(cmd.Context(), student)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions for student %s.\n", student)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tELAPSED\tTRIALS\tACCURACY\tEVENTS\tABC")
	for _, s := range sessions {
		stats := record.ComputeTrialStats(s.Trials)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d%%\t%d\t%d\n",
			s.ID, formatStart(s.StartTime), formatElapsed(s.ElapsedSeconds),
			stats.Total, stats.AccuracyPercent, len(s.FrequencyEvents), len(s.ABCRecords))
	}
	w.Flush()
	return nil
}

func newSessionsShowCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, configPath, args[0], asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to fieldnote config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session record")
	return cmd
}

func runSessionsShow(cmd *cobra.Command, configPath, id string, asJSON bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	s, err := store.NewSessions(gormDB).Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printSession(out, s)
	return nil
}

func printSession(out io.Writer, s record.Session) {
	fmt.Fprintf(out, "Session:  %s\n", s.ID)
	fmt.Fprintf(out, "Student:  %s\n", s.StudentID)
	fmt.Fprintf(out, "Started:  %s\n", formatStart(s.StartTime))
	if s.EndTime != nil {
		fmt.Fprintf(out, "Ended:    %s\n", s.EndTime.Local().Format(timeLayout))
	}
	fmt.Fprintf(out, "Elapsed:  %s\n", formatElapsed(s.ElapsedSeconds))

	byGoal := make(map[string][]record.TrialRecord)
	for _, t := range s.Trials {
		byGoal[t.GoalID] = append(byGoal[t.GoalID], t)
	}
	if len(byGoal) > 0 {
		fmt.Fprintln(out, "\nTrials:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  GOAL\tTOTAL\tCORRECT\tINCORRECT\tPROMPTED\tACCURACY")
		for _, goal := range sortedKeys(byGoal) {
			st := record.ComputeTrialStats(byGoal[goal])
			fmt.Fprintf(w, "  %s\t%d\t%d\t%d\t%d\t%d%%\n", goal, st.Total, st.Correct, st.Incorrect, st.Prompted, st.AccuracyPercent)
		}
		w.Flush()
	}

	if len(s.FrequencyEvents) > 0 {
		fmt.Fprintf(out, "\nFrequency events: %d\n", len(s.FrequencyEvents))
	}
	if len(s.DurationIntervals) > 0 {
		total := record.TotalDuration(s.DurationIntervals)
		fmt.Fprintf(out, "\nDuration: %d intervals, %s total\n", len(s.DurationIntervals), total.Round(time.Second))
	}
	if len(s.TaskSteps) > 0 {
		fmt.Fprintln(out, "\nTask steps:")
		for _, step := range s.TaskSteps {
			fmt.Fprintf(out, "  [%s] %s\n", step.Status, step.Label)
		}
	}
	if len(s.ABCRecords) > 0 {
		fmt.Fprintln(out, "\nABC:")
		for _, a := range s.ABCRecords {
			fmt.Fprintf(out, "  %s (%s)\n    A: %s\n    B: %s\n    C: %s\n",
				a.Timestamp.Local().Format(timeLayout), a.Intensity, a.Antecedent, a.Behavior, a.Consequence)
		}
	}
	if s.OverallNotes != "" {
		fmt.Fprintf(out, "\nSession notes:\n%s\n", s.OverallNotes)
	}
	for _, goal := range sortedKeys(s.GoalNotes) {
		fmt.Fprintf(out, "\nNotes for %s:\n%s\n", goal, s.GoalNotes[goal])
	}
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// formatElapsed renders seconds as H:MM:SS.
func formatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
