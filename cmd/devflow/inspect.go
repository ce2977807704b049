package main

import (
	"encoding/json"
	"fmt"

	"github.com/bestyec/DevFlowCheck/internal/complexity"
	"github.com/bestyec/DevFlowCheck/internal/prompt"
	"github.com/bestyec/DevFlowCheck/internal/tracker"
	"github.com/spf13/cobra"
)

func newNextCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the task the next iteration would pick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			client, err := a.trackerClient()
			if err != nil {
				return err
			}
			next, found, err := client.Next(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending tasks.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Next task: #%s - %s\n", next.ID, next.Title)
			return nil
		},
	}
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the fields devflow extracts from a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := loadTask(cmd, root, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(task)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Task ID:       %s\n", task.ID)
			fmt.Fprintf(out, "Title:         %s\n", orNone(task.Title))
			fmt.Fprintf(out, "Details:\n%s\n", orNone(task.Details))
			fmt.Fprintf(out, "Test Strategy:\n%s\n", orNone(task.TestStrategy))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newComplexityCmd(root *rootOptions) *cobra.Command {
	var analyze bool

	cmd := &cobra.Command{
		Use:   "complexity <id>",
		Short: "Evaluate a task against the complexity threshold",
		Long: `Evaluate a task against the complexity threshold using the existing
complexity report. With --analyze the tracker re-scores the task first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := tracker.ValidateID(id); err != nil {
				return err
			}
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			if analyze {
				client, err := a.trackerClient()
				if err != nil {
					return err
				}
				if err := client.AnalyzeComplexity(cmd.Context(), id); err != nil {
					return err
				}
			}

			gate := complexity.NewGate(a.cfg.Workflow.ComplexityThreshold, a.logger.Underlying().Named("complexity"))
			report, err := complexity.LoadReport(a.workPath(a.cfg.Tracker.ReportPath))
			if err != nil {
				return fmt.Errorf("reading complexity report: %w", err)
			}

			d := gate.Evaluate(id, report)
			out := cmd.OutOrStdout()
			if !d.Found {
				fmt.Fprintf(out, "Task %s has no entry in the complexity report.\n", id)
				return nil
			}
			fmt.Fprintf(out, "Task:      %s\n", id)
			fmt.Fprintf(out, "Score:     %g\n", d.Score)
			fmt.Fprintf(out, "Threshold: %g\n", gate.Threshold())
			fmt.Fprintf(out, "Expand:    %t\n", d.NeedsExpansion)
			if d.ExpansionPrompt != "" {
				fmt.Fprintf(out, "Prompt:    %s\n", d.ExpansionPrompt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "run analyze-complexity before evaluating")
	return cmd
}

func newPromptCmd(root *rootOptions) *cobra.Command {
	var failedOutput string

	cmd := &cobra.Command{
		Use:   "prompt <id>",
		Short: "Print the prompt the agent would receive for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := loadTask(cmd, root, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fix") {
				fmt.Fprint(cmd.OutOrStdout(), prompt.Fix(task, failedOutput))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), prompt.Implementation(task))
			return nil
		},
	}
	cmd.Flags().StringVar(&failedOutput, "fix", "", "print the fix prompt for this failing test output instead")
	return cmd
}

// loadTask runs show for id and returns the extracted task.
func loadTask(cmd *cobra.Command, root *rootOptions, id string) (tracker.Task, error) {
	if err := tracker.ValidateID(id); err != nil {
		return tracker.Task{}, err
	}
	a, err := newApp(cmd, root)
	if err != nil {
		return tracker.Task{}, err
	}
	defer a.close(cmd.Context())

	client, err := a.trackerClient()
	if err != nil {
		return tracker.Task{}, err
	}
	d, err := client.Show(cmd.Context(), id)
	if err != nil {
		return tracker.Task{}, err
	}
	return tracker.Task{ID: id, Title: d.Title, Details: d.Details, TestStrategy: d.TestStrategy}, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
