package orchestrator

import (
	"regexp"
	"strings"
)

// Severity indicates whether a violation blocks the commit.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is a problem found by a CommitGate.
type Violation struct {
	Gate        string   `json:"gate"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// CommitGate inspects an iteration before its changes are committed and the
// task is marked done.
type CommitGate interface {
	Name() string
	Check(it *Iteration) []Violation
}

// DefaultGates returns the gates every controller runs.
func DefaultGates() []CommitGate {
	return []CommitGate{VerificationGate{}, HelpOutputGate{}}
}

// VerificationGate requires lint and tests to have most recently succeeded
// within the iteration.
type VerificationGate struct{}

// Name returns the gate identifier.
func (VerificationGate) Name() string { return "verification" }

// Check validates the iteration's verification results.
func (g VerificationGate) Check(it *Iteration) []Violation {
	var violations []Violation
	if it.Task.ID == "" {
		violations = append(violations, Violation{g.Name(), "no task in flight", SeverityError})
	}
	if it.Lint == nil || !it.Lint.Succeeded {
		violations = append(violations, Violation{g.Name(), "lint has not passed", SeverityError})
	}
	if it.Tests == nil || !it.Tests.Succeeded {
		violations = append(violations, Violation{g.Name(), "tests have not passed", SeverityError})
	}
	return violations
}

// HelpOutputGate rejects a test run whose output is CLI usage text, which is
// what a misconfigured test command usually prints while exiting 0.
type HelpOutputGate struct{}

// Name returns the gate identifier.
func (HelpOutputGate) Name() string { return "help-output" }

// Check inspects the test output.
func (g HelpOutputGate) Check(it *Iteration) []Violation {
	if it.Tests == nil || !isHelpOutput(it.Tests.Output) {
		return nil
	}
	return []Violation{{g.Name(), "test command printed usage text instead of test results", SeverityError}}
}

var (
	helpPatterns = []string{
		"usage:",
		"--help",
		"-h, --help",
		"show help",
		"show this help",
		"options:",
		"available commands:",
	}

	testPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(pass|fail|error).*\d+`),
		regexp.MustCompile(`(?i)test.*\([\d.]+s\)`),
		regexp.MustCompile(`✓|✗`),
		regexp.MustCompile(`(?i)ok\s+\S+\s+[\d.]+s`),
		regexp.MustCompile(`(?i)test suites?:\s*\d+`),
	}
)

// isHelpOutput reports whether output looks like --help text rather than
// test results.
func isHelpOutput(output string) bool {
	if output == "" {
		return false
	}
	for _, p := range testPatterns {
		if p.MatchString(output) {
			return false
		}
	}

	lower := strings.ToLower(output)
	hits := 0
	for _, p := range helpPatterns {
		if strings.Contains(lower, p) {
			hits++
		}
	}
	return hits >= 2
}

func blocking(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}

func describe(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, "["+v.Gate+"] "+v.Description)
	}
	return strings.Join(parts, "; ")
}
