// Package orchestrator drives tasks from the tracker through implementation,
// verification and commit.
//
// # Iteration
//
// Controller.Step runs one iteration of the state machine:
//
//	fetch → details → analyze_complexity → expand
//	                                     ↘ implement → verify → [retry_fix → verify] → commit → complete
//
// Each iteration handles at most one task. Expansion ends the iteration and
// asks the driver to continue immediately. Failing tests get exactly one fix
// attempt; lint failures get none. A task is marked done only after lint and
// tests succeeded in the same iteration and the commit went through, which is
// enforced again by the commit gates just before commit.
//
// Only complexity analysis and the final status update fail soft. Every other
// failure, including a recovered panic, ends the iteration with stop-error and
// a *StepError naming the state and the task.
//
// # Driver
//
// Runner repeats Step with a delay between iterations, honours an optional
// iteration bound and, in watch mode, waits on a TasksWatcher when no tasks
// remain instead of stopping.
//
// # Observability
//
// Every iteration is an "orchestrator.iteration" span with one event per
// state entered. Prometheus metrics are described on Metrics. A Board keeps
// a snapshot of the run for the status server.
package orchestrator
