package main

import (
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	dir        string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "devflow",
		Short: "Drive a task tracker through implement, verify and commit cycles",
		Long: `devflow takes the next pending task from the task tracker, has an agent
implement it, runs lint and tests (with one automated fix attempt), commits
the result and marks the task done. Tasks whose complexity score reaches the
threshold are expanded into subtasks instead.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(versionString() + "\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: .devflow.yaml in the project directory)")
	flags.StringVarP(&opts.dir, "dir", "C", ".", "project directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts),
		newNextCmd(opts),
		newShowCmd(opts),
		newComplexityCmd(opts),
		newPromptCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
