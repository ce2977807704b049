package orchestrator

import (
	"context"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/logging"
	"go.uber.org/zap"
)

// Stepper runs one iteration. *Controller satisfies it.
type Stepper interface {
	Step(ctx context.Context) Result
}

// Waiter blocks until there may be new work. *TasksWatcher satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Stop reasons reported in Summary.Reason.
const (
	ReasonNoTasks       = "no_tasks"
	ReasonError         = "error"
	ReasonMaxIterations = "max_iterations"
	ReasonInterrupted   = "interrupted"
)

// Summary describes a finished run.
type Summary struct {
	Iterations int       `json:"iterations"`
	Completed  int       `json:"completed"`
	Expanded   int       `json:"expanded"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	LastTaskID string    `json:"last_task_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration,omitempty"`
}

// Failed reports whether the run ended with stop-error.
func (s Summary) Failed() bool {
	return s.Outcome == OutcomeStopError
}

// Runner drives a Stepper until there is no work left, an iteration fails,
// the iteration bound is reached or ctx is cancelled.
type Runner struct {
	stepper       Stepper
	delay         time.Duration
	maxIterations int
	watcher       Waiter
	board         *Board
	logger        *logging.Logger
	now           func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDelay sets the pause between iterations. Results with Immediate set
// skip it.
func WithDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.delay = d }
}

// WithMaxIterations bounds the number of iterations. Zero means unbounded.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) { r.maxIterations = n }
}

// WithWatcher makes the runner wait on w instead of stopping when no tasks
// remain.
func WithWatcher(w Waiter) RunnerOption {
	return func(r *Runner) { r.watcher = w }
}

// WithRunnerBoard publishes run summaries to b.
func WithRunnerBoard(b *Board) RunnerOption {
	return func(r *Runner) { r.board = b }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(s Stepper, opts ...RunnerOption) *Runner {
	r := &Runner{stepper: s, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until a stop condition and returns what happened.
func (r *Runner) Run(ctx context.Context) (sum Summary) {
	sum.StartedAt = r.now()
	defer func() {
		sum.Duration = r.now().Sub(sum.StartedAt).Round(time.Millisecond).String()
		if sum.Err != nil {
			sum.Error = sum.Err.Error()
		}
		r.board.summary(sum, false)
		r.logger.Info(ctx, "run finished",
			zap.String("outcome", string(sum.Outcome)),
			zap.String("reason", sum.Reason),
			zap.Int("iterations", sum.Iterations),
			zap.Int("completed", sum.Completed),
			zap.Int("expanded", sum.Expanded),
		)
	}()

	for {
		if ctx.Err() != nil {
			sum.Reason = ReasonInterrupted
			return sum
		}

		res := r.stepper.Step(ctx)
		sum.Iterations++
		sum.Outcome = res.Outcome
		if res.TaskID != "" {
			sum.LastTaskID = res.TaskID
		}
		if res.Outcome == OutcomeContinue {
			switch res.State {
			case StateComplete:
				sum.Completed++
			case StateExpand:
				sum.Expanded++
			}
		}
		r.board.summary(sum, true)

		switch res.Outcome {
		case OutcomeStopError:
			sum.Err = res.Err
			sum.Reason = ReasonError
			if ctx.Err() != nil {
				sum.Reason = ReasonInterrupted
			}
			return sum

		case OutcomeStopNormal:
			if r.watcher == nil {
				sum.Reason = ReasonNoTasks
				return sum
			}
			if r.boundReached(sum) {
				sum.Reason = ReasonMaxIterations
				return sum
			}
			r.logger.Info(ctx, "no pending tasks, waiting for the tasks file to change")
			r.board.waiting(true)
			err := r.watcher.Wait(ctx)
			r.board.waiting(false)
			if err != nil {
				if ctx.Err() != nil {
					sum.Reason = ReasonInterrupted
					return sum
				}
				sum.Outcome = OutcomeStopError
				sum.Err = err
				sum.Reason = ReasonError
				return sum
			}
			continue
		}

		if r.boundReached(sum) {
			sum.Reason = ReasonMaxIterations
			return sum
		}
		if !res.Immediate && r.delay > 0 {
			if !sleep(ctx, r.delay) {
				sum.Reason = ReasonInterrupted
				return sum
			}
		}
	}
}

func (r *Runner) boundReached(sum Summary) bool {
	return r.maxIterations > 0 && sum.Iterations >= r.maxIterations
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
