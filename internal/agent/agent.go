// Package agent hands prompts to the external code-generation agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"github.com/bestyec/DevFlowCheck/internal/gateway"
	"go.uber.org/zap"
)

// ErrFailed is wrapped by every error returned when the agent command fails.
var ErrFailed = errors.New("agent failed")

// Agent applies a prompt to the working tree.
type Agent interface {
	Apply(ctx context.Context, prompt string) error
}

// CommandAgent runs an agent CLI through a gateway. The prompt goes to stdin
// unless promptArg is set, in which case it is appended as the last argument.
type CommandAgent struct {
	gw        gateway.Invoker
	promptArg bool
	env       []string
	logger    *zap.Logger
}

// Option configures a CommandAgent.
type Option func(*CommandAgent)

// WithPromptArg passes the prompt as the last argument instead of stdin.
func WithPromptArg(enabled bool) Option {
	return func(a *CommandAgent) { a.promptArg = enabled }
}

// WithAPIKey exports key to the agent process as envName. An unset key
// leaves the inherited environment alone.
func WithAPIKey(envName string, key config.Secret) Option {
	return func(a *CommandAgent) {
		if envName != "" && key.IsSet() {
			a.env = append(a.env, envName+"="+key.Value())
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *CommandAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewCommandAgent creates a CommandAgent on top of gw.
func NewCommandAgent(gw gateway.Invoker, opts ...Option) *CommandAgent {
	a := &CommandAgent{gw: gw, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply sends prompt to the agent and waits for it to exit.
func (a *CommandAgent) Apply(ctx context.Context, prompt string) error {
	req := gateway.Request{Env: a.env}
	if a.promptArg {
		req.Args = []string{prompt}
	} else {
		req.Stdin = prompt
	}

	a.logger.Info("applying prompt with agent", zap.Int("prompt_bytes", len(prompt)))
	res := a.gw.Run(ctx, req)
	if !res.Succeeded {
		return fmt.Errorf("%w (exit %d): %s", ErrFailed, res.ExitCode, truncate(strings.TrimSpace(res.Output), 500))
	}

	a.logger.Debug("agent finished", zap.Duration("duration", res.Duration))
	return nil
}

// PromptOnly logs prompts instead of running an agent, for driving a
// human-in-the-loop or dry-run session.
type PromptOnly struct {
	logger *zap.Logger
}

// NewPromptOnly creates a PromptOnly agent.
func NewPromptOnly(logger *zap.Logger) *PromptOnly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptOnly{logger: logger}
}

// Apply logs prompt and always succeeds.
func (p *PromptOnly) Apply(ctx context.Context, prompt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("no agent configured, would send prompt", zap.String("prompt", prompt))
	return nil
}

// New builds the Agent described by cfg. An empty binary selects PromptOnly.
func New(cfg config.AgentConfig, dir string, logger *zap.Logger, gwOpts ...gateway.Option) (Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Binary == "" {
		return NewPromptOnly(logger.Named("agent")), nil
	}

	gw, err := gateway.New(gateway.Config{
		Binary:   cfg.Binary,
		BaseArgs: cfg.Args,
		Dir:      dir,
		Timeout:  cfg.Timeout.Duration(),
	}, append([]gateway.Option{gateway.WithLogger(logger.Named("gateway"))}, gwOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating agent gateway: %w", err)
	}

	return NewCommandAgent(gw,
		WithPromptArg(cfg.PromptArg),
		WithAPIKey(cfg.APIKeyEnv, cfg.APIKey),
		WithLogger(logger.Named("agent")),
	), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var (
	_ Agent = (*CommandAgent)(nil)
	_ Agent = (*PromptOnly)(nil)
)
