// Package secrets keeps credentials out of commits and logs.
//
// Detector scans staged files with the Gitleaks rule set before devflow
// commits agent-generated changes. Scrubber masks credentials in command
// output before it is logged or fed back to the agent in a fix prompt.
// Both honour the project's .gitleaks.toml allowlist.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
