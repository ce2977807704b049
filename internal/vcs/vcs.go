// Package vcs records completed work in the project's git repository.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/secrets"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Fallback author identity when neither devflow nor git config name one.
const (
	DefaultAuthorName  = "devflow"
	DefaultAuthorEmail = "devflow@localhost"
)

var (
	// ErrNotRepository is returned when the configured path is not inside a
	// git working tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrSecretsDetected is returned when staged changes contain credentials.
	// Nothing is committed; the changes stay staged for inspection.
	ErrSecretsDetected = errors.New("secrets detected in staged changes")
)

// SecretsError lists the findings that blocked a commit.
type SecretsError struct {
	Findings []secrets.Finding
}

func (e *SecretsError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrSecretsDetected, strings.Join(parts, ", "))
}

// Is matches ErrSecretsDetected.
func (e *SecretsError) Is(target error) bool {
	return target == ErrSecretsDetected
}

// CommitMessage is the message recorded for a completed task.
func CommitMessage(id, title string) string {
	return fmt.Sprintf("feat: Complete task %s - %s", id, title)
}

// Committer stages and commits the working tree.
type Committer struct {
	path        string
	authorName  string
	authorEmail string
	allowEmpty  bool
	detector    *secrets.Detector
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Committer.
type Option func(*Committer)

// WithAuthor sets the commit author. Empty values fall back to git config.
func WithAuthor(name, email string) Option {
	return func(c *Committer) {
		c.authorName = name
		c.authorEmail = email
	}
}

// WithAllowEmpty permits commits that record no changes.
func WithAllowEmpty(allow bool) Option {
	return func(c *Committer) { c.allowEmpty = allow }
}

// WithSecretScan scans staged files with d before committing.
func WithSecretScan(d *secrets.Detector) Option {
	return func(c *Committer) { c.detector = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Committer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCommitter creates a Committer for the repository containing path.
func NewCommitter(path string, opts ...Option) *Committer {
	c := &Committer{path: path, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Committer) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(c.path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, c.path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", c.path, err)
	}
	return repo, nil
}

// Commit stages every change in the working tree and commits it with
// CommitMessage(id, title). Any failure returns an error; staged changes are
// not rolled back.
func (c *Committer) Commit(ctx context.Context, id, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	repo, err := c.open()
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	staged, err := stagedFiles(wt)
	if err != nil {
		return err
	}
	c.logger.Debug("staged changes", zap.String("task_id", id), zap.Strings("files", staged))

	if c.detector != nil && len(staged) > 0 {
		findings, err := c.detector.ScanFiles(wt.Filesystem.Root(), staged)
		if err != nil {
			return fmt.Errorf("scanning staged files: %w", err)
		}
		if len(findings) > 0 {
			c.logger.Error("refusing to commit, secrets detected",
				zap.String("task_id", id),
				zap.Int("findings", len(findings)),
			)
			return &SecretsError{Findings: findings}
		}
	}

	name, email := c.author(repo)
	hash, err := wt.Commit(CommitMessage(id, title), &git.CommitOptions{
		Author:            &object.Signature{Name: name, Email: email, When: c.now()},
		AllowEmptyCommits: c.allowEmpty,
	})
	if err != nil {
		return fmt.Errorf("committing task %s: %w", id, err)
	}

	c.logger.Info("committed task",
		zap.String("task_id", id),
		zap.String("commit", hash.String()),
		zap.Int("files", len(staged)),
	)
	return nil
}

// author resolves the signature: explicit option, then repository and
// global git config, then the devflow defaults.
func (c *Committer) author(repo *git.Repository) (string, string) {
	name, email := c.authorName, c.authorEmail
	if name != "" && email != "" {
		return name, email
	}

	if cfg, err := repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
		if name == "" {
			name = cfg.User.Name
		}
		if email == "" {
			email = cfg.User.Email
		}
	}
	if name == "" {
		name = DefaultAuthorName
	}
	if email == "" {
		email = DefaultAuthorEmail
	}
	return name, email
}

// stagedFiles lists paths whose index entry differs from HEAD, sorted.
func stagedFiles(wt *git.Worktree) ([]string, error) {
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}

	var files []string
	for path, fs := range status {
		switch fs.Staging {
		case git.Unmodified, git.Untracked, git.Deleted:
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Branch returns the checked-out branch of the repository containing path,
// or "" when it cannot be determined (not a repo, no commits, detached HEAD).
func Branch(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}
