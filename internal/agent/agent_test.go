package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"github.com/bestyec/DevFlowCheck/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, name string, args ...string) gateway.Result {
	return m.Called(name, args).Get(0).(gateway.Result)
}

func (m *mockInvoker) Run(ctx context.Context, req gateway.Request) gateway.Result {
	return m.Called(req).Get(0).(gateway.Result)
}

func TestCommandAgent_Stdin(t *testing.T) {
	inv := new(mockInvoker)
	inv.On("Run", gateway.Request{Stdin: "implement task 7"}).Return(gateway.Result{Succeeded: true})

	require.NoError(t, NewCommandAgent(inv).Apply(context.Background(), "implement task 7"))
	inv.AssertExpectations(t)
}

func TestCommandAgent_PromptArgAndKey(t *testing.T) {
	inv := new(mockInvoker)
	want := gateway.Request{
		Args: []string{"implement task 7"},
		Env:  []string{"ANTHROPIC_API_KEY=sk-ant-test"},
	}
	inv.On("Run", want).Return(gateway.Result{Succeeded: true})

	a := NewCommandAgent(inv,
		WithPromptArg(true),
		WithAPIKey("ANTHROPIC_API_KEY", config.Secret("sk-ant-test")),
	)
	require.NoError(t, a.Apply(context.Background(), "implement task 7"))
	inv.AssertExpectations(t)
}

func TestCommandAgent_UnsetKeyNotExported(t *testing.T) {
	a := NewCommandAgent(new(mockInvoker), WithAPIKey("ANTHROPIC_API_KEY", ""))
	assert.Empty(t, a.env)
}

func TestCommandAgent_Failure(t *testing.T) {
	inv := new(mockInvoker)
	inv.On("Run", mock.Anything).Return(gateway.Result{Output: "model overloaded\n", ExitCode: 2})

	err := NewCommandAgent(inv).Apply(context.Background(), "p")

	require.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "exit 2")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestPromptOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewPromptOnly(zap.New(core))

	require.NoError(t, p.Apply(context.Background(), "Task ID: 7"))
	entries := logs.FilterMessage("no agent configured, would send prompt").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Task ID: 7", entries[0].ContextMap()["prompt"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(p.Apply(ctx, "x"), context.Canceled))
}

func TestNew_PromptOnlyWhenNoBinary(t *testing.T) {
	a, err := New(config.AgentConfig{}, ".", nil)
	require.NoError(t, err)
	assert.IsType(t, &PromptOnly{}, a)
}

func TestNew_CommandAgentEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > prompt.txt\necho \"$DEVFLOW_TEST_KEY\" > key.txt\n"), 0o755))

	a, err := New(config.AgentConfig{
		Binary:    script,
		Timeout:   config.Duration(10 * time.Second),
		APIKey:    config.Secret("secret-value"),
		APIKeyEnv: "DEVFLOW_TEST_KEY",
	}, dir, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &CommandAgent{}, a)

	require.NoError(t, a.Apply(context.Background(), "hello agent"))

	prompt, err := os.ReadFile(filepath.Join(dir, "prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello agent", string(prompt))

	key, err := os.ReadFile(filepath.Join(dir, "key.txt"))
	require.NoError(t, err)
	assert.Equal(t, "secret-value\n", string(key))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))

	got := truncate(strings.Repeat("─", 10), 10)
	assert.Equal(t, "───...", got)
	assert.True(t, utf8.ValidString(got))
}
