// Devflow drives a task-tracking CLI through an implement, verify and commit
// loop, one task per iteration.
//
// Usage:
//
//	# Work through every pending task, then exit
//	devflow run
//
//	# Process a single iteration
//	devflow run --once
//
//	# Keep running and resume when tasks/tasks.json changes
//	devflow run --watch
//
// Configuration is read from .devflow.yaml in the project directory and
// DEVFLOW_* environment variables. See internal/config for details.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var re *runError
		if !errors.As(err, &re) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
