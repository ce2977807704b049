package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bestyec/DevFlowCheck/internal/logging"
	"github.com/bestyec/DevFlowCheck/internal/prompt"
	"github.com/bestyec/DevFlowCheck/internal/tracker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/bestyec/DevFlowCheck/internal/orchestrator"

// outputExcerpt bounds how much command output is copied into errors.
const outputExcerpt = 2000

// Deps are the collaborators a Controller drives.
type Deps struct {
	Tracker    Tracker
	Gate       ComplexityGate
	ReportPath string
	Agent      Agent
	Verifier   Verifier
	Committer  Committer
}

func (d Deps) validate() error {
	var missing []string
	if d.Tracker == nil {
		missing = append(missing, "tracker")
	}
	if d.Gate == nil {
		missing = append(missing, "complexity gate")
	}
	if d.ReportPath == "" {
		missing = append(missing, "report path")
	}
	if d.Agent == nil {
		missing = append(missing, "agent")
	}
	if d.Verifier == nil {
		missing = append(missing, "verifier")
	}
	if d.Committer == nil {
		missing = append(missing, "committer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Controller runs the per-task state machine, one iteration per Step.
// It holds no task state between iterations; everything about the task in
// flight lives in the Iteration created by Step.
type Controller struct {
	deps  Deps
	gates []CommitGate

	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
	board   *Board
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	iterations int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer for iteration spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithBoard publishes iteration progress to b.
func WithBoard(b *Board) Option {
	return func(c *Controller) { c.board = b }
}

// WithIterationTimeout bounds a whole iteration. Zero means no bound.
func WithIterationTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithGates replaces the commit gates.
func WithGates(gates ...CommitGate) Option {
	return func(c *Controller) { c.gates = gates }
}

// NewController creates a Controller.
func NewController(deps Deps, opts ...Option) (*Controller, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		deps:    deps,
		gates:   DefaultGates(),
		logger:  logging.NewNop(),
		tracer:  tracenoop.NewTracerProvider().Tracer(instrumentationName),
		metrics: NewMetrics(nil),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Step runs one iteration. It never panics: a panic in a collaborator is
// recovered and reported as stop-error.
func (c *Controller) Step(ctx context.Context) (res Result) {
	c.iterations++
	it := &Iteration{ID: c.newID(), Number: c.iterations, StartedAt: c.now()}

	ctx = logging.WithIterationID(ctx, it.ID)
	ctx, span := c.tracer.Start(ctx, "orchestrator.iteration", trace.WithAttributes(
		attribute.String("iteration.id", it.ID),
		attribute.Int("iteration.number", it.Number),
	))
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "iteration panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = c.fail(ctx, it, fmt.Errorf("%w: %v", ErrPanic, r))
		}
		res.Duration = c.now().Sub(it.StartedAt)

		c.metrics.recordIteration(res)
		c.board.finished(res)

		span.SetAttributes(
			attribute.String("iteration.outcome", string(res.Outcome)),
			attribute.String("iteration.state", string(res.State)),
		)
		if res.TaskID != "" {
			span.SetAttributes(attribute.String("task.id", res.TaskID))
		}
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()

		c.logger.Info(ctx, "iteration finished",
			zap.String("outcome", string(res.Outcome)),
			zap.String("state", string(res.State)),
			zap.String("task", res.TaskID),
			zap.Bool("immediate", res.Immediate),
			zap.Duration("duration", res.Duration),
		)
	}()

	return c.run(ctx, it)
}

func (c *Controller) run(ctx context.Context, it *Iteration) Result {
	c.enter(ctx, it, StateFetch)
	next, found, err := c.deps.Tracker.Next(ctx)
	if err != nil {
		return c.fail(ctx, it, err)
	}
	if !found {
		c.logger.Info(ctx, "no pending tasks")
		return Result{Outcome: OutcomeStopNormal, State: it.State}
	}

	it.Task = tracker.Task{ID: next.ID, Title: next.Title}
	ctx = logging.WithTaskID(ctx, next.ID)
	c.logger.Info(ctx, "next task", zap.String("title", next.Title))

	c.enter(ctx, it, StateDetails)
	details, err := c.deps.Tracker.Show(ctx, it.Task.ID)
	if err != nil {
		return c.fail(ctx, it, err)
	}
	if details.Details == "" {
		return c.fail(ctx, it, ErrMissingDetails)
	}
	// The show table wraps long titles over several rows, so the title
	// announced by next is authoritative.
	if it.Task.Title == "" {
		it.Task.Title = details.Title
	}
	it.Task.Details = details.Details
	it.Task.TestStrategy = details.TestStrategy

	c.enter(ctx, it, StateAnalyzeComplexity)
	if err := c.deps.Tracker.AnalyzeComplexity(ctx, it.Task.ID); err != nil {
		c.metrics.ComplexityFailures.Inc()
		c.logger.Warn(ctx, "complexity analysis failed, skipping expansion check", zap.Error(err))
	} else {
		it.Complexity = c.deps.Gate.EvaluateFile(c.deps.ReportPath, it.Task.ID)
	}

	if it.Complexity.NeedsExpansion {
		return c.expand(ctx, it)
	}
	return c.implement(ctx, it)
}

// expand splits the task into subtasks. It is terminal for the iteration.
func (c *Controller) expand(ctx context.Context, it *Iteration) Result {
	c.enter(ctx, it, StateExpand)
	c.logger.Info(ctx, "task exceeds complexity threshold, expanding",
		zap.Float64("score", it.Complexity.Score),
		zap.Bool("has_prompt", it.Complexity.ExpansionPrompt != ""),
	)

	if err := c.deps.Tracker.Expand(ctx, it.Task.ID, it.Complexity.ExpansionPrompt); err != nil {
		return c.fail(ctx, it, err)
	}
	c.metrics.ExpansionsTotal.Inc()

	return Result{Outcome: OutcomeContinue, Immediate: true, TaskID: it.Task.ID, State: it.State}
}

func (c *Controller) implement(ctx context.Context, it *Iteration) Result {
	c.enter(ctx, it, StateImplement)
	if err := c.deps.Agent.Apply(ctx, prompt.Implementation(it.Task)); err != nil {
		return c.fail(ctx, it, err)
	}

	c.enter(ctx, it, StateVerify)
	lint := c.deps.Verifier.RunLint(ctx)
	it.Lint = &lint
	if !lint.Succeeded {
		return c.fail(ctx, it, fmt.Errorf("%w: %s", ErrLintFailed, excerpt(lint.Output)))
	}

	tests := c.deps.Verifier.RunTests(ctx)
	it.Tests = &tests
	if !tests.Succeeded {
		c.enter(ctx, it, StateRetryFix)
		it.Retried = true
		c.logger.Warn(ctx, "tests failed, attempting one automated fix", zap.String("output", excerpt(tests.Output)))

		if err := c.deps.Agent.Apply(ctx, prompt.Fix(it.Task, tests.Output)); err != nil {
			return c.fail(ctx, it, err)
		}

		c.enter(ctx, it, StateVerify)
		tests = c.deps.Verifier.RunTests(ctx)
		it.Tests = &tests
		c.metrics.recordRetry(tests.Succeeded)
		if !tests.Succeeded {
			return c.fail(ctx, it, fmt.Errorf("%w: %s", ErrTestsFailed, excerpt(tests.Output)))
		}
	}

	if violations := c.checkGates(ctx, it); len(violations) > 0 {
		return c.fail(ctx, it, fmt.Errorf("%w: %s", ErrGateViolation, describe(violations)))
	}

	c.enter(ctx, it, StateCommit)
	if err := c.deps.Committer.Commit(ctx, it.Task.ID, it.Task.Title); err != nil {
		return c.fail(ctx, it, err)
	}

	c.enter(ctx, it, StateComplete)
	if err := c.deps.Tracker.SetStatus(ctx, it.Task.ID, tracker.StatusDone); err != nil {
		c.metrics.StatusUpdateFailures.Inc()
		c.logger.Error(ctx, "task committed but not marked done, it will be offered again", zap.Error(err))
	} else {
		c.metrics.TasksCompletedTotal.Inc()
		c.logger.Info(ctx, "task completed", zap.Bool("retried", it.Retried))
	}

	return Result{Outcome: OutcomeContinue, TaskID: it.Task.ID, State: it.State}
}

// checkGates runs the commit gates and returns the blocking violations.
func (c *Controller) checkGates(ctx context.Context, it *Iteration) []Violation {
	var all []Violation
	for _, g := range c.gates {
		all = append(all, g.Check(it)...)
	}
	for _, v := range all {
		if v.Severity == SeverityWarning {
			c.logger.Warn(ctx, "commit gate warning", zap.String("gate", v.Gate), zap.String("violation", v.Description))
		}
	}
	return blocking(all)
}

func (c *Controller) enter(ctx context.Context, it *Iteration, s State) {
	it.enter(s, c.now())
	span := trace.SpanFromContext(ctx)
	if it.Task.ID != "" {
		span.AddEvent(string(s), trace.WithAttributes(attribute.String("task.id", it.Task.ID)))
	} else {
		span.AddEvent(string(s))
	}
	c.metrics.recordTransition(s)
	c.board.iteration(it)
	c.logger.Debug(ctx, "state transition", zap.String("state", string(s)))
}

// fail ends the iteration with stop-error. The task is left as the tracker
// has it, so a later run fetches it again.
func (c *Controller) fail(ctx context.Context, it *Iteration, err error) Result {
	var se *StepError
	if !errors.As(err, &se) {
		se = &StepError{State: it.State, TaskID: it.Task.ID, Err: err}
	}
	c.logger.Error(ctx, "iteration failed", zap.String("state", string(it.State)), zap.Error(err))
	return Result{Outcome: OutcomeStopError, TaskID: it.Task.ID, State: it.State, Err: se}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= outputExcerpt {
		return s
	}
	start := len(s) - outputExcerpt
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
