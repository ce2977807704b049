package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionString() string {
	return fmt.Sprintf("devflow %s (commit %s, built %s, %s %s/%s)",
		version, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}
