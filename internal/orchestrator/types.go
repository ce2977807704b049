package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/complexity"
	"github.com/bestyec/DevFlowCheck/internal/tracker"
	"github.com/bestyec/DevFlowCheck/internal/verify"
)

// State is a step of the per-iteration state machine.
type State string

const (
	StateFetch             State = "fetch"
	StateDetails           State = "details"
	StateAnalyzeComplexity State = "analyze_complexity"
	StateExpand            State = "expand"
	StateImplement         State = "implement"
	StateVerify            State = "verify"
	StateRetryFix          State = "retry_fix"
	StateCommit            State = "commit"
	StateComplete          State = "complete"
)

// AllStates returns every state in nominal order.
func AllStates() []State {
	return []State{
		StateFetch, StateDetails, StateAnalyzeComplexity, StateExpand,
		StateImplement, StateVerify, StateRetryFix, StateCommit, StateComplete,
	}
}

// Outcome tells the driver what to do after an iteration.
type Outcome string

const (
	OutcomeContinue   Outcome = "continue"
	OutcomeStopNormal Outcome = "stop-normal"
	OutcomeStopError  Outcome = "stop-error"
)

// Result is the outcome of one Step.
type Result struct {
	Outcome Outcome
	// Immediate asks the driver to skip the inter-iteration delay.
	Immediate bool
	// TaskID is the task processed, empty when none was fetched.
	TaskID string
	// State is the last state entered.
	State    State
	Err      error
	Duration time.Duration
}

// Sentinel causes carried by StepError.
var (
	ErrMissingDetails = errors.New("task has no implementation details")
	ErrLintFailed     = errors.New("lint failed")
	ErrTestsFailed    = errors.New("tests failed after fix attempt")
	ErrGateViolation  = errors.New("commit gate violation")
	ErrPanic          = errors.New("iteration panicked")
)

// StepError is the error of a stop-error Result.
type StepError struct {
	State  State
	TaskID string
	Err    error
}

func (e *StepError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("task %s: %s: %v", e.TaskID, e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Transition records entering a state.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Iteration is the context threaded through one pass of the state machine.
// It is created by Step and discarded when Step returns.
type Iteration struct {
	ID          string
	Number      int
	StartedAt   time.Time
	State       State
	Transitions []Transition
	Task        tracker.Task
	Complexity  complexity.Decision
	Lint        *verify.Result
	Tests       *verify.Result
	Retried     bool
}

func (it *Iteration) enter(s State, now time.Time) {
	it.State = s
	it.Transitions = append(it.Transitions, Transition{State: s, At: now})
}

// Tracker is the subset of the tracker client the controller drives.
type Tracker interface {
	Next(ctx context.Context) (tracker.NextTask, bool, error)
	Show(ctx context.Context, id string) (tracker.Details, error)
	AnalyzeComplexity(ctx context.Context, id string) error
	Expand(ctx context.Context, id, prompt string) error
	SetStatus(ctx context.Context, id, status string) error
}

// ComplexityGate decides expansion from the persisted report.
type ComplexityGate interface {
	EvaluateFile(path, taskID string) complexity.Decision
}

// Agent applies prompts to the working tree.
type Agent interface {
	Apply(ctx context.Context, prompt string) error
}

// Verifier runs lint and tests.
type Verifier interface {
	RunLint(ctx context.Context) verify.Result
	RunTests(ctx context.Context) verify.Result
}

// Committer records the working tree.
type Committer interface {
	Commit(ctx context.Context, id, title string) error
}
