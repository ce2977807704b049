// Package tracker talks to the task-tracking CLI (task-master) and turns its
// terminal-oriented output into typed records.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bestyec/DevFlowCheck/internal/gateway"
	"go.uber.org/zap"
)

// Tracker commands.
const (
	CmdNext              = "next"
	CmdShow              = "show"
	CmdAnalyzeComplexity = "analyze-complexity"
	CmdExpand            = "expand"
	CmdSetStatus         = "set-status"
	CmdTest              = "test"
)

// StatusDone is the status written when a task is complete.
const StatusDone = "done"

// Task is one unit of work as seen during a single iteration.
type Task struct {
	ID           string
	Title        string
	Details      string
	TestStrategy string
}

// maxErrorOutput bounds the command output quoted in a CommandError.
const maxErrorOutput = 500

// CommandError reports a tracker command that did not succeed.
type CommandError struct {
	Command string
	TaskID  string
	Output  string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if len(msg) > maxErrorOutput {
		cut := maxErrorOutput
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if e.TaskID != "" {
		return fmt.Sprintf("tracker %s for task %s failed: %s", e.Command, e.TaskID, msg)
	}
	return fmt.Sprintf("tracker %s failed: %s", e.Command, msg)
}

// Client is a typed adapter over the tracker CLI.
type Client struct {
	gw       gateway.Invoker
	research bool
	logger   *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithResearch toggles --research on analyze-complexity and expand.
func WithResearch(research bool) ClientOption {
	return func(c *Client) { c.research = research }
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. Research mode is on by default.
func NewClient(gw gateway.Invoker, opts ...ClientOption) *Client {
	c := &Client{gw: gw, research: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next returns the next pending task. ok is false when the tracker reports
// nothing actionable.
func (c *Client) Next(ctx context.Context) (next NextTask, ok bool, err error) {
	res := c.gw.Invoke(ctx, CmdNext)
	if !res.Succeeded {
		return NextTask{}, false, &CommandError{Command: CmdNext, Output: res.Output}
	}

	next, ok = ParseNext(res.Output)
	if !ok {
		c.logger.Debug("no next task announced", zap.String("output", res.Output))
	}
	return next, ok, nil
}

// Show returns the parsed details of a task. Missing fields are left empty;
// callers decide which ones they need.
func (c *Client) Show(ctx context.Context, id string) (Details, error) {
	res := c.gw.Invoke(ctx, CmdShow, idArg(id))
	if !res.Succeeded {
		return Details{}, &CommandError{Command: CmdShow, TaskID: id, Output: res.Output}
	}

	d := ParseShow(res.Output)
	if missing := d.Missing(); len(missing) > 0 {
		c.logger.Warn("could not parse all fields from show output",
			zap.String("task_id", id),
			zap.Strings("missing", missing),
		)
	}
	return d, nil
}

// AnalyzeComplexity asks the tracker to score a task. The score is written to
// the complexity report, not returned.
func (c *Client) AnalyzeComplexity(ctx context.Context, id string) error {
	args := []string{idArg(id)}
	if c.research {
		args = append(args, "--research")
	}
	if res := c.gw.Invoke(ctx, CmdAnalyzeComplexity, args...); !res.Succeeded {
		return &CommandError{Command: CmdAnalyzeComplexity, TaskID: id, Output: res.Output}
	}
	return nil
}

// Expand splits a task into subtasks, guided by prompt when non-empty.
func (c *Client) Expand(ctx context.Context, id, prompt string) error {
	args := []string{idArg(id)}
	if prompt != "" {
		args = append(args, "--prompt="+prompt)
	}
	if c.research {
		args = append(args, "--research")
	}
	if res := c.gw.Invoke(ctx, CmdExpand, args...); !res.Succeeded {
		return &CommandError{Command: CmdExpand, TaskID: id, Output: res.Output}
	}
	return nil
}

// SetStatus updates a task's status.
func (c *Client) SetStatus(ctx context.Context, id, status string) error {
	if res := c.gw.Invoke(ctx, CmdSetStatus, idArg(id), "--status="+status); !res.Succeeded {
		return &CommandError{Command: CmdSetStatus, TaskID: id, Output: res.Output}
	}
	return nil
}

// Test runs the tracker's test command.
func (c *Client) Test(ctx context.Context) gateway.Result {
	return c.gw.Invoke(ctx, CmdTest)
}

func idArg(id string) string {
	return "--id=" + id
}
