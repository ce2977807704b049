// Package gateway runs external commands (the task tracker, lint and test
// tools, the code-generation agent) and reduces every outcome to a Result.
//
// A Gateway never returns an error: launch failures, non-zero exits,
// timeouts and cancelled rate-limit waits all become Succeeded=false with the
// most useful text available in Output.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/bestyec/DevFlowCheck/internal/gateway"

// waitDelay bounds how long we wait for pipes after the process is killed.
const waitDelay = 2 * time.Second

// Result is the outcome of one invocation.
type Result struct {
	Succeeded bool
	Output    string
	ExitCode  int // -1 when the process never ran or was killed
	Duration  time.Duration
}

// Request describes one invocation. Name may be empty for commands that take
// no subcommand, such as the agent.
type Request struct {
	Name  string
	Args  []string
	Stdin string
	Env   []string // KEY=value pairs added to the inherited environment
}

// Invoker is what the rest of devflow depends on.
type Invoker interface {
	Invoke(ctx context.Context, name string, args ...string) Result
	Run(ctx context.Context, req Request) Result
}

// Config configures a Gateway.
type Config struct {
	Binary    string
	BaseArgs  []string // placed between Binary and the request name
	Dir       string
	Timeout   time.Duration // 0 disables the per-invocation timeout
	RateLimit float64       // invocations per second, 0 disables
	Burst     int
}

// Gateway runs one configured binary.
type Gateway struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer

	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithMeter records invocation metrics on meter.
func WithMeter(meter metric.Meter) Option {
	return func(g *Gateway) {
		if meter != nil {
			g.initMetrics(meter)
		}
	}
}

// New creates a Gateway for cfg.Binary.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.Binary == "" {
		return nil, errors.New("gateway: binary is required")
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("gateway: rate limit must be >= 0, got %v", cfg.RateLimit)
	}

	g := &Gateway{
		cfg:    cfg,
		logger: zap.NewNop(),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	g.initMetrics(noop.NewMeterProvider().Meter(instrumentationName))

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("binary", cfg.Binary))

	return g, nil
}

func (g *Gateway) initMetrics(meter metric.Meter) {
	var err error
	g.invocations, err = meter.Int64Counter(
		"devflow.gateway.invocations",
		metric.WithDescription("External command invocations labeled by binary, command and outcome"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		g.logger.Warn("failed to create invocations counter", zap.Error(err))
		g.invocations, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("devflow.gateway.invocations")
	}

	g.duration, err = meter.Float64Histogram(
		"devflow.gateway.duration_seconds",
		metric.WithDescription("External command duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		g.logger.Warn("failed to create duration histogram", zap.Error(err))
		g.duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("devflow.gateway.duration_seconds")
	}
}

// Binary returns the configured binary.
func (g *Gateway) Binary() string {
	return g.cfg.Binary
}

// Invoke runs `<binary> <base args> <name> <args>`.
func (g *Gateway) Invoke(ctx context.Context, name string, args ...string) Result {
	return g.Run(ctx, Request{Name: name, Args: args})
}

// Run executes req and never returns an error; see the package doc.
func (g *Gateway) Run(ctx context.Context, req Request) Result {
	command := req.Name
	if command == "" {
		command = g.cfg.Binary
	}

	ctx, span := g.tracer.Start(ctx, "gateway.invoke", trace.WithAttributes(
		attribute.String("command.binary", g.cfg.Binary),
		attribute.String("command.name", command),
	))
	defer span.End()

	res := g.run(ctx, req)

	outcome := "success"
	if !res.Succeeded {
		outcome = "failure"
		span.SetStatus(codes.Error, firstLine(res.Output))
	}
	span.SetAttributes(attribute.Int("command.exit_code", res.ExitCode))

	attrs := metric.WithAttributes(
		attribute.String("binary", g.cfg.Binary),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	)
	g.invocations.Add(ctx, 1, attrs)
	g.duration.Record(ctx, res.Duration.Seconds(), attrs)

	g.logger.Debug("command finished",
		zap.String("command", command),
		zap.Strings("args", req.Args),
		zap.Bool("succeeded", res.Succeeded),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (g *Gateway) run(ctx context.Context, req Request) Result {
	start := time.Now()
	failed := func(msg string) Result {
		return Result{Output: msg, ExitCode: -1, Duration: time.Since(start)}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return failed(fmt.Sprintf("rate limit wait: %v", err))
		}
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(g.cfg.BaseArgs)+1+len(req.Args))
	argv = append(argv, g.cfg.BaseArgs...)
	if req.Name != "" {
		argv = append(argv, req.Name)
	}
	argv = append(argv, req.Args...)

	cmd := exec.CommandContext(ctx, g.cfg.Binary, argv...)
	cmd.Dir = g.cfg.Dir
	cmd.WaitDelay = waitDelay
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Duration: time.Since(start),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		res.Succeeded = true
		res.Output = stdout.String()
		return res
	}

	switch {
	case strings.TrimSpace(stderr.String()) != "":
		res.Output = stderr.String()
	case strings.TrimSpace(stdout.String()) != "":
		res.Output = stdout.String()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Output = fmt.Sprintf("%s: timed out after %s", g.cfg.Binary, g.cfg.Timeout)
	default:
		res.Output = err.Error()
	}
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
