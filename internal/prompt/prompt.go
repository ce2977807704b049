// Package prompt builds the instructions handed to the code-generation agent.
//
// Both builders are pure functions of their inputs. Missing task fields are
// replaced with fixed placeholders so the agent always sees every section.
package prompt

import (
	"strings"

	"github.com/bestyec/DevFlowCheck/internal/tracker"
)

// Placeholders used when the tracker left a field empty.
const (
	NoTitle           = "N/A"
	NoGoal            = "No specific details provided..."
	NoStrategy        = "No specific test strategy provided..."
	NoDetails         = "No details provided."
	NoFixTestStrategy = "No test strategy provided."
)

const implementationInstructions = `Implement the goal above in the current repository.
Keep changes focused on this task and follow the existing code style.
Add or update tests so the testing requirements are met.
Do not commit; the workflow commits after verification passes.`

const fixInstructions = `Based on the task requirements and the failed test output, please provide the necessary code modifications to fix the tests. Focus only on the minimal code changes required. Assume relevant files are available for editing.`

// Implementation composes the prompt for implementing task.
func Implementation(task tracker.Task) string {
	var b strings.Builder

	b.WriteString("Task ID: ")
	b.WriteString(orDefault(task.ID, NoTitle))
	b.WriteString("\nTask Title: ")
	b.WriteString(orDefault(task.Title, NoTitle))
	b.WriteString("\n\n**Goal:**\n")
	b.WriteString(orDefault(task.Details, NoGoal))

	b.WriteString("\n\n**Testing & Verification Requirements:**\n")
	if strategy := strings.TrimSpace(task.TestStrategy); strategy != "" {
		b.WriteString("Please adhere to the following testing strategy:\n")
		b.WriteString(strategy)
	} else {
		b.WriteString(NoStrategy)
	}

	b.WriteString("\n\n**Instructions:**\n")
	b.WriteString(implementationInstructions)
	b.WriteString("\n")
	return b.String()
}

// Fix composes the prompt asking the agent to repair failing tests.
// failedOutput is embedded verbatim inside a fenced block.
func Fix(task tracker.Task, failedOutput string) string {
	var b strings.Builder

	b.WriteString("Task ID: ")
	b.WriteString(orDefault(task.ID, NoTitle))
	b.WriteString("\nTask Title: ")
	b.WriteString(orDefault(task.Title, NoTitle))
	b.WriteString("\nTask Details:\n")
	b.WriteString(orDefault(task.Details, NoDetails))
	b.WriteString("\n\nTest Strategy:\n")
	b.WriteString(orDefault(task.TestStrategy, NoFixTestStrategy))

	b.WriteString("\n\nThe following tests failed:\n```\n")
	b.WriteString(failedOutput)
	if !strings.HasSuffix(failedOutput, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(fixInstructions)
	b.WriteString("\n")
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
