package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty temp dir so a developer's own config is never picked up.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
}

func TestLoadWithFile_DefaultsWithoutFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()

	cfg, err := LoadWithFile("", project)
	require.NoError(t, err)

	assert.Equal(t, "task-master", cfg.Tracker.Binary)
	assert.True(t, cfg.Tracker.Research)
	assert.Equal(t, "scripts/task-complexity-report.json", cfg.Tracker.ReportPath)
	assert.Equal(t, project, cfg.Tracker.WorkDir)
	assert.Equal(t, project, cfg.Git.RepoPath)
	assert.Equal(t, 8.0, cfg.Workflow.ComplexityThreshold)
	assert.Equal(t, time.Second, cfg.Workflow.IterationDelay.Duration())
	assert.Empty(t, cfg.Agent.Binary, "prompt-only mode by default")
	assert.True(t, cfg.Git.SecretScan)
	assert.True(t, cfg.Git.AllowEmpty)
}

func TestLoadWithFile_ProjectFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeConfig(t, filepath.Join(project, ProjectFileName), `
tracker:
  binary: /opt/bin/task-master
  research: false
  timeout: 90s
agent:
  binary: claude
  args: ["-p", "--verbose"]
verify:
  lint:
    binary: golangci-lint
    args: ["run", "./..."]
workflow:
  complexity_threshold: 6.5
  max_iterations: 3
`, 0o600)

	cfg, err := LoadWithFile("", project)
	require.NoError(t, err)

	assert.Equal(t, "/opt/bin/task-master", cfg.Tracker.Binary)
	assert.False(t, cfg.Tracker.Research)
	assert.Equal(t, 90*time.Second, cfg.Tracker.Timeout.Duration())
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, []string{"-p", "--verbose"}, cfg.Agent.Args)
	assert.Equal(t, "golangci-lint", cfg.Verify.Lint.Binary)
	assert.Equal(t, []string{"run", "./..."}, cfg.Verify.Lint.Args)
	assert.Equal(t, 5*time.Minute, cfg.Verify.Lint.Timeout.Duration(), "unset keys keep defaults")
	assert.Equal(t, 6.5, cfg.Workflow.ComplexityThreshold)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
}

func TestLoadWithFile_UserConfigDir(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "devflow", "config.yaml"), "workflow:\n  max_iterations: 7\n", 0o600)

	cfg, err := LoadWithFile("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workflow.MaxIterations)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeConfig(t, filepath.Join(project, ProjectFileName), "tracker:\n  binary: from-file\n", 0o600)

	t.Setenv("DEVFLOW_TRACKER_BINARY", "from-env")
	t.Setenv("DEVFLOW_WORKFLOW_ITERATION_DELAY", "250ms")
	t.Setenv("DEVFLOW_VERIFY_TEST_BINARY", "go")
	t.Setenv("DEVFLOW_VERIFY_TEST_ARGS", "test,./...")
	t.Setenv("DEVFLOW_GIT_SECRET_SCAN", "false")

	cfg, err := LoadWithFile("", project)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Tracker.Binary)
	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.IterationDelay.Duration())
	assert.Equal(t, "go", cfg.Verify.Test.Binary)
	assert.Equal(t, []string{"test", "./..."}, cfg.Verify.Test.Args)
	assert.False(t, cfg.Git.SecretScan)
}

func TestLoadWithFile_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()

	_, err := LoadWithFile(filepath.Join(project, "nope.yaml"), project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestLoadWithFile_RejectsOutsideAllowedDirs(t *testing.T) {
	isolate(t)
	other := t.TempDir()
	path := filepath.Join(other, "config.yaml")
	writeConfig(t, path, "tracker:\n  binary: x\n", 0o600)

	_, err := LoadWithFile(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_RejectsWritableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	isolate(t)
	project := t.TempDir()
	writeConfig(t, filepath.Join(project, ProjectFileName), "tracker:\n  binary: x\n", 0o666)

	_, err := LoadWithFile("", project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_AcceptsReadableFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeConfig(t, filepath.Join(project, ProjectFileName), "tracker:\n  binary: x\n", 0o644)

	cfg, err := LoadWithFile("", project)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Tracker.Binary)
}

func TestLoadWithFile_RejectsLargeFile(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	big := make([]byte, maxConfigFileSize+1)
	for i := range big {
		big[i] = '#'
	}
	writeConfig(t, filepath.Join(project, ProjectFileName), string(big), 0o600)

	_, err := LoadWithFile("", project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file too large")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeConfig(t, filepath.Join(project, ProjectFileName), "workflow:\n  complexity_threshold: 0\n", 0o600)

	_, err := LoadWithFile("", project)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complexity_threshold")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DEVFLOW_TRACKER_BINARY":           "tracker.binary",
		"DEVFLOW_TRACKER_REPORT_PATH":      "tracker.report_path",
		"DEVFLOW_WORKFLOW_ITERATION_DELAY": "workflow.iteration_delay",
		"DEVFLOW_VERIFY_LINT_BINARY":       "verify.lint.binary",
		"DEVFLOW_VERIFY_TEST_TIMEOUT":      "verify.test.timeout",
		"DEVFLOW_STATUS_PORT":              "status.port",
		"DEVFLOW_WATCH":                    "watch",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, envKey(in))
		})
	}
}
