package secrets

// Rule is a pattern that marks a credential in free-form command output.
// When Keywords is non-empty at least one must occur (case-insensitively)
// in the text for the rule to run.
type Rule struct {
	ID       string
	Pattern  string
	Keywords []string
}

// OutputRules returns the patterns used to mask credentials in tracker, lint,
// test and agent output. They are deliberately narrower than the Gitleaks set
// used for staged files: output is masked, never rejected.
func OutputRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{20,}`},
		{ID: "openai-api-key", Pattern: `sk-(?:proj-)?[A-Za-z0-9]{32,}`},
		{ID: "aws-access-key-id", Pattern: `(A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`},
		{ID: "github-token", Pattern: `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`},
		{ID: "database-url", Pattern: `(?i)(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^:\s]+:[^@\s]+@\S+`},
		{
			ID:       "generic-api-key",
			Pattern:  `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords: []string{"api"},
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`,
			Keywords: []string{"bearer"},
		},
		{
			ID:       "env-credential",
			Pattern:  `(?i)\b(?:[A-Z0-9_]*_(?:PASSWORD|SECRET|TOKEN)|SECRET_KEY|PRIVATE_KEY)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
			Keywords: []string{"password", "secret", "token", "private_key"},
		},
	}
}
