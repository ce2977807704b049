package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/agent"
	"github.com/bestyec/DevFlowCheck/internal/complexity"
	httpserver "github.com/bestyec/DevFlowCheck/internal/http"
	"github.com/bestyec/DevFlowCheck/internal/logging"
	"github.com/bestyec/DevFlowCheck/internal/orchestrator"
	"github.com/bestyec/DevFlowCheck/internal/secrets"
	"github.com/bestyec/DevFlowCheck/internal/vcs"
	"github.com/bestyec/DevFlowCheck/internal/verify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const orchestratorScope = "github.com/bestyec/DevFlowCheck/internal/orchestrator"

// runError marks a run that ended with stop-error. The summary has already
// been printed, so main only sets the exit code.
type runError struct {
	summary orchestrator.Summary
}

func (e *runError) Error() string {
	return fmt.Sprintf("run stopped after %d iteration(s): %s", e.summary.Iterations, e.summary.Error)
}

func (e *runError) Unwrap() error {
	return e.summary.Err
}

type runOptions struct {
	once          bool
	watch         bool
	maxIterations int
	status        bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending tasks until none remain",
		Long: `Process pending tasks one iteration at a time.

Each iteration fetches the next task, expands it when its complexity score
reaches the threshold, and otherwise implements, verifies, commits and marks
it done. The run stops when no tasks remain, when an iteration fails, when
--max-iterations is reached, or on SIGINT/SIGTERM.

Examples:
  # Work through the backlog
  devflow run

  # One iteration only
  devflow run --once

  # Wait for new tasks instead of exiting, with the status server on
  devflow run --watch --status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single iteration")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "wait for the tasks file to change instead of exiting when no tasks remain")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "stop after this many iterations (0 uses workflow.max_iterations)")
	cmd.Flags().BoolVar(&opts.status, "status", false, "serve /health, /status and /metrics while running")
	return cmd
}

func runWorkflow(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	a, err := newApp(cmd, root)
	if err != nil {
		return err
	}
	cfg := a.cfg
	if cmd.Flags().Changed("watch") {
		cfg.Workflow.Watch = opts.watch
	}
	if opts.maxIterations > 0 {
		cfg.Workflow.MaxIterations = opts.maxIterations
	}
	if opts.once {
		cfg.Workflow.MaxIterations = 1
	}
	if opts.status {
		cfg.Status.Enabled = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	defer a.close(context.WithoutCancel(ctx))

	zl := a.logger.Underlying()
	gwOpts := a.gatewayOptions()

	client, err := a.trackerClient()
	if err != nil {
		return err
	}

	ag, err := agent.New(cfg.Agent, cfg.Tracker.WorkDir, zl, gwOpts...)
	if err != nil {
		return err
	}

	allowlist, err := secrets.LoadAllowlists(cfg.Git.RepoPath, cfg.Git.AllowlistPath)
	if err != nil {
		return fmt.Errorf("loading secret allowlists: %w", err)
	}
	scrubber, err := secrets.NewOutputScrubber(allowlist)
	if err != nil {
		return err
	}

	verifier, err := verify.New(cfg.Verify, cfg.Tracker.WorkDir, client, scrubber, zl, gwOpts...)
	if err != nil {
		return err
	}

	commitOpts := []vcs.Option{
		vcs.WithAuthor(cfg.Git.AuthorName, cfg.Git.AuthorEmail),
		vcs.WithAllowEmpty(cfg.Git.AllowEmpty),
		vcs.WithLogger(zl.Named("vcs")),
	}
	if cfg.Git.SecretScan {
		detector, err := secrets.NewDetector(allowlist)
		if err != nil {
			return fmt.Errorf("creating secret detector: %w", err)
		}
		commitOpts = append(commitOpts, vcs.WithSecretScan(detector))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewMetrics(reg)

	branch := vcs.Branch(cfg.Git.RepoPath)
	board := orchestrator.NewBoard(runID, branch, time.Now())

	controller, err := orchestrator.NewController(orchestrator.Deps{
		Tracker:    client,
		Gate:       complexity.NewGate(cfg.Workflow.ComplexityThreshold, zl.Named("complexity")),
		ReportPath: a.workPath(cfg.Tracker.ReportPath),
		Agent:      ag,
		Verifier:   verifier,
		Committer:  vcs.NewCommitter(cfg.Git.RepoPath, commitOpts...),
	},
		orchestrator.WithLogger(a.logger.Named("orchestrator")),
		orchestrator.WithTracer(a.tel.Tracer(orchestratorScope)),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithBoard(board),
		orchestrator.WithIterationTimeout(cfg.Workflow.IterationTimeout.Duration()),
	)
	if err != nil {
		return err
	}

	runnerOpts := []orchestrator.RunnerOption{
		orchestrator.WithDelay(cfg.Workflow.IterationDelay.Duration()),
		orchestrator.WithMaxIterations(cfg.Workflow.MaxIterations),
		orchestrator.WithRunnerBoard(board),
		orchestrator.WithRunnerLogger(a.logger.Named("runner")),
	}
	if cfg.Workflow.Watch {
		watcher, err := orchestrator.NewTasksWatcher(a.workPath(cfg.Tracker.TasksFile), zl.Named("watcher"))
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()
		runnerOpts = append(runnerOpts, orchestrator.WithWatcher(watcher))
	}

	if cfg.Status.Enabled {
		srv, err := httpserver.NewServer(board, zl.Named("http"),
			&httpserver.Config{Host: cfg.Status.Host, Port: cfg.Status.Port},
			httpserver.WithGatherer(reg),
			httpserver.WithHTTPMetrics(httpserver.NewHTTPMetrics(a.tel.Meter(httpserver.InstrumentationName), zl)),
		)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				a.logger.Error(ctx, "status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Status.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				a.logger.Warn(ctx, "status server shutdown failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info(ctx, "starting run",
		zap.String("branch", branch),
		zap.String("work_dir", cfg.Tracker.WorkDir),
		zap.Int("max_iterations", cfg.Workflow.MaxIterations),
		zap.Bool("watch", cfg.Workflow.Watch),
		zap.Bool("agent", cfg.Agent.Binary != ""),
	)

	sum := orchestrator.NewRunner(controller, runnerOpts...).Run(ctx)
	printSummary(cmd, sum)
	if sum.Failed() {
		return &runError{summary: sum}
	}
	return nil
}

func printSummary(cmd *cobra.Command, sum orchestrator.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run finished: %s\n", sum.Reason)
	fmt.Fprintf(out, "  Iterations: %d\n", sum.Iterations)
	fmt.Fprintf(out, "  Completed:  %d\n", sum.Completed)
	fmt.Fprintf(out, "  Expanded:   %d\n", sum.Expanded)
	if sum.LastTaskID != "" {
		fmt.Fprintf(out, "  Last task:  %s\n", sum.LastTaskID)
	}
	fmt.Fprintf(out, "  Duration:   %s\n", sum.Duration)
	if sum.Error != "" {
		fmt.Fprintf(out, "  Error:      %s\n", sum.Error)
	}
}
