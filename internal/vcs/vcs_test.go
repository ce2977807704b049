package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/secrets"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir, repo
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func headCommit(t *testing.T, repo *git.Repository) (string, string, string) {
	t.Helper()
	ref, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return commit.Message, commit.Author.Name, commit.Author.Email
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "feat: Complete task 10.2 - Parse report", CommitMessage("10.2", "Parse report"))
}

func TestCommit_StagesAndCommits(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "internal/report/report.go", "package report\n")

	core, logs := observer.New(zapcore.InfoLevel)
	c := NewCommitter(dir, WithAuthor("Dev Flow", "dev@example.com"), WithLogger(zap.New(core)))
	require.NoError(t, c.Commit(context.Background(), "7", "Status update"))

	msg, name, email := headCommit(t, repo)
	assert.Equal(t, "feat: Complete task 7 - Status update", msg)
	assert.Equal(t, "Dev Flow", name)
	assert.Equal(t, "dev@example.com", email)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	status, err := wt.Status()
	require.NoError(t, err)
	assert.True(t, status.IsClean())

	entries := logs.FilterMessage("committed task").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["files"])
}

func TestCommit_FromSubdirectory(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "pkg/a.go", "package pkg\n")

	require.NoError(t, NewCommitter(filepath.Join(dir, "pkg"), WithAuthor("a", "a@b")).Commit(context.Background(), "1", "One"))
	msg, _, _ := headCommit(t, repo)
	assert.Equal(t, "feat: Complete task 1 - One", msg)
}

func TestCommit_Empty(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "a.txt", "a")
	require.NoError(t, NewCommitter(dir, WithAuthor("a", "a@b")).Commit(context.Background(), "1", "First"))

	t.Run("allowed", func(t *testing.T) {
		c := NewCommitter(dir, WithAuthor("a", "a@b"), WithAllowEmpty(true))
		require.NoError(t, c.Commit(context.Background(), "2", "Nothing changed"))
		msg, _, _ := headCommit(t, repo)
		assert.Equal(t, "feat: Complete task 2 - Nothing changed", msg)
	})

	t.Run("rejected", func(t *testing.T) {
		c := NewCommitter(dir, WithAuthor("a", "a@b"))
		assert.Error(t, c.Commit(context.Background(), "3", "Still nothing"))
		msg, _, _ := headCommit(t, repo)
		assert.Equal(t, "feat: Complete task 2 - Nothing changed", msg)
	})
}

func TestCommit_SecretsBlockCommit(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "a.txt", "a")
	require.NoError(t, NewCommitter(dir, WithAuthor("a", "a@b")).Commit(context.Background(), "1", "First"))

	writeFile(t, dir, "config.go", "package config\n\nconst apiKey = \"sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz\"\n")

	detector, err := secrets.NewDetector(nil)
	require.NoError(t, err)
	err = NewCommitter(dir, WithAuthor("a", "a@b"), WithSecretScan(detector)).Commit(context.Background(), "2", "Leaky")

	require.ErrorIs(t, err, ErrSecretsDetected)
	var secErr *SecretsError
	require.True(t, errors.As(err, &secErr))
	require.NotEmpty(t, secErr.Findings)
	assert.Equal(t, "config.go", secErr.Findings[0].File)
	assert.NotContains(t, err.Error(), "sk-proj-abc123")

	msg, _, _ := headCommit(t, repo)
	assert.Equal(t, "feat: Complete task 1 - First", msg)
}

func TestCommit_AllowlistedPath(t *testing.T) {
	dir, repo := initRepo(t)
	writeFile(t, dir, "testdata/fixture.txt", "const apiKey = \"sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz\"\n")

	detector, err := secrets.NewDetector(&secrets.Allowlist{Paths: []string{`^testdata/`}})
	require.NoError(t, err)
	require.NoError(t, NewCommitter(dir, WithAuthor("a", "a@b"), WithSecretScan(detector)).Commit(context.Background(), "4", "Fixtures"))

	msg, _, _ := headCommit(t, repo)
	assert.Equal(t, "feat: Complete task 4 - Fixtures", msg)
}

func TestCommit_NotARepository(t *testing.T) {
	err := NewCommitter(t.TempDir()).Commit(context.Background(), "1", "x")
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestCommit_Cancelled(t *testing.T) {
	dir, _ := initRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewCommitter(dir).Commit(ctx, "1", "x"), context.Canceled)
}

func TestCommit_DefaultAuthor(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir, repo := initRepo(t)
	writeFile(t, dir, "a.txt", "a")

	c := NewCommitter(dir)
	c.now = func() time.Time { return time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, c.Commit(context.Background(), "1", "First"))

	_, name, email := headCommit(t, repo)
	assert.Equal(t, DefaultAuthorName, name)
	assert.Equal(t, DefaultAuthorEmail, email)
}

func TestBranch(t *testing.T) {
	dir, _ := initRepo(t)
	assert.Empty(t, Branch(dir), "no commits yet")

	writeFile(t, dir, "a.txt", "a")
	require.NoError(t, NewCommitter(dir, WithAuthor("a", "a@b")).Commit(context.Background(), "1", "First"))
	assert.Equal(t, "master", Branch(dir))

	assert.Empty(t, Branch(t.TempDir()))
}
