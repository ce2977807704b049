// Package verify runs the lint and test checks that gate every commit.
package verify

import (
	"context"
	"fmt"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"github.com/bestyec/DevFlowCheck/internal/gateway"
	"github.com/bestyec/DevFlowCheck/internal/secrets"
	"go.uber.org/zap"
)

// LintSkipped is the output reported when no lint command is configured.
const LintSkipped = "lint skipped: no lint command configured"

// Result is the outcome of one check.
type Result struct {
	Succeeded bool
	Output    string
}

// TestRunner runs the project's test suite. *tracker.Client satisfies it.
type TestRunner interface {
	Test(ctx context.Context) gateway.Result
}

// commandTests runs a dedicated test command.
type commandTests struct {
	gw gateway.Invoker
}

func (c commandTests) Test(ctx context.Context) gateway.Result {
	return c.gw.Run(ctx, gateway.Request{})
}

// Runner executes lint and tests. It never retries.
type Runner struct {
	lint     gateway.Invoker
	tests    TestRunner
	scrubber *secrets.Scrubber
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLint runs lint through gw. Without it lint always passes.
func WithLint(gw gateway.Invoker) Option {
	return func(r *Runner) { r.lint = gw }
}

// WithTests sets the test runner.
func WithTests(t TestRunner) Option {
	return func(r *Runner) { r.tests = t }
}

// WithTestCommand runs tests through gw instead of the tracker.
func WithTestCommand(gw gateway.Invoker) Option {
	return func(r *Runner) { r.tests = commandTests{gw: gw} }
}

// WithScrubber masks credentials in check output.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(r *Runner) { r.scrubber = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New builds a Runner from cfg. Tests fall back to tests when cfg.Test is
// unset.
func New(cfg config.VerifyConfig, dir string, tests TestRunner, scrubber *secrets.Scrubber, logger *zap.Logger, gwOpts ...gateway.Option) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []Option{WithTests(tests), WithScrubber(scrubber), WithLogger(logger.Named("verify"))}

	if cfg.Lint.IsSet() {
		gw, err := commandGateway(cfg.Lint, dir, logger, gwOpts)
		if err != nil {
			return nil, fmt.Errorf("creating lint gateway: %w", err)
		}
		opts = append(opts, WithLint(gw))
	}
	if cfg.Test.IsSet() {
		gw, err := commandGateway(cfg.Test, dir, logger, gwOpts)
		if err != nil {
			return nil, fmt.Errorf("creating test gateway: %w", err)
		}
		opts = append(opts, WithTestCommand(gw))
	}
	return NewRunner(opts...), nil
}

func commandGateway(cc config.CommandConfig, dir string, logger *zap.Logger, gwOpts []gateway.Option) (*gateway.Gateway, error) {
	return gateway.New(gateway.Config{
		Binary:   cc.Binary,
		BaseArgs: cc.Args,
		Dir:      dir,
		Timeout:  cc.Timeout.Duration(),
	}, append([]gateway.Option{gateway.WithLogger(logger.Named("gateway"))}, gwOpts...)...)
}

// RunLint runs the lint command.
func (r *Runner) RunLint(ctx context.Context) Result {
	if r.lint == nil {
		r.logger.Warn(LintSkipped)
		return Result{Succeeded: true, Output: LintSkipped}
	}

	res := r.result(r.lint.Run(ctx, gateway.Request{}))
	r.logger.Info("lint finished", zap.Bool("succeeded", res.Succeeded))
	return res
}

// RunTests runs the test suite.
func (r *Runner) RunTests(ctx context.Context) Result {
	if r.tests == nil {
		return Result{Output: "no test runner configured"}
	}

	res := r.result(r.tests.Test(ctx))
	r.logger.Info("tests finished", zap.Bool("succeeded", res.Succeeded))
	return res
}

func (r *Runner) result(gr gateway.Result) Result {
	return Result{Succeeded: gr.Succeeded, Output: r.scrubber.String(gr.Output)}
}
