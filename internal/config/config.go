// Package config provides configuration loading for devflow.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then DEVFLOW_* environment variables. See LoadWithFile for the precedence
// rules and the file checks.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete devflow configuration.
type Config struct {
	Tracker   TrackerConfig   `koanf:"tracker" yaml:"tracker"`
	Agent     AgentConfig     `koanf:"agent" yaml:"agent"`
	Verify    VerifyConfig    `koanf:"verify" yaml:"verify"`
	Git       GitConfig       `koanf:"git" yaml:"git"`
	Workflow  WorkflowConfig  `koanf:"workflow" yaml:"workflow"`
	Status    StatusConfig    `koanf:"status" yaml:"status"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// TrackerConfig describes how to reach the task-tracking CLI.
type TrackerConfig struct {
	Binary     string   `koanf:"binary" yaml:"binary"`
	Args       []string `koanf:"args" yaml:"args"`               // prepended before the command name
	WorkDir    string   `koanf:"work_dir" yaml:"work_dir"`
	Timeout    Duration `koanf:"timeout" yaml:"timeout"`
	Research   bool     `koanf:"research" yaml:"research"`       // pass --research to analyze-complexity and expand
	ReportPath string   `koanf:"report_path" yaml:"report_path"` // relative to WorkDir
	TasksFile  string   `koanf:"tasks_file" yaml:"tasks_file"`   // watched in --watch mode
	RateLimit  float64  `koanf:"rate_limit" yaml:"rate_limit"`   // invocations per second, 0 disables
	Burst      int      `koanf:"burst" yaml:"burst"`
}

// AgentConfig describes the code-generation agent command.
// An empty Binary selects prompt-only mode: prompts are logged, nothing is executed.
type AgentConfig struct {
	Binary    string   `koanf:"binary" yaml:"binary"`
	Args      []string `koanf:"args" yaml:"args"`
	PromptArg bool     `koanf:"prompt_arg" yaml:"prompt_arg"` // pass the prompt as the last argument instead of stdin
	Timeout   Duration `koanf:"timeout" yaml:"timeout"`
	APIKey    Secret   `koanf:"api_key" yaml:"api_key"`
	APIKeyEnv string   `koanf:"api_key_env" yaml:"api_key_env"`
}

// CommandConfig is an external command line split into binary and arguments.
type CommandConfig struct {
	Binary  string   `koanf:"binary" yaml:"binary"`
	Args    []string `koanf:"args" yaml:"args"`
	Timeout Duration `koanf:"timeout" yaml:"timeout"`
}

// IsSet reports whether a binary was configured.
func (c CommandConfig) IsSet() bool {
	return c.Binary != ""
}

// VerifyConfig configures the lint and test checks.
// An unset Test command runs "test" through the tracker CLI.
type VerifyConfig struct {
	Lint CommandConfig `koanf:"lint" yaml:"lint"`
	Test CommandConfig `koanf:"test" yaml:"test"`
}

// GitConfig configures the commit step.
type GitConfig struct {
	RepoPath      string `koanf:"repo_path" yaml:"repo_path"`
	AuthorName    string `koanf:"author_name" yaml:"author_name"`
	AuthorEmail   string `koanf:"author_email" yaml:"author_email"`
	AllowEmpty    bool   `koanf:"allow_empty" yaml:"allow_empty"`
	SecretScan    bool   `koanf:"secret_scan" yaml:"secret_scan"`
	AllowlistPath string `koanf:"allowlist_path" yaml:"allowlist_path"` // user allowlist.toml, merged with <repo>/.gitleaks.toml
}

// WorkflowConfig configures the control loop.
type WorkflowConfig struct {
	ComplexityThreshold float64  `koanf:"complexity_threshold" yaml:"complexity_threshold"`
	IterationDelay      Duration `koanf:"iteration_delay" yaml:"iteration_delay"`
	IterationTimeout    Duration `koanf:"iteration_timeout" yaml:"iteration_timeout"` // 0 disables
	MaxIterations       int      `koanf:"max_iterations" yaml:"max_iterations"`       // 0 means unbounded
	Watch               bool     `koanf:"watch" yaml:"watch"`
}

// StatusConfig configures the optional status HTTP server.
type StatusConfig struct {
	Enabled         bool     `koanf:"enabled" yaml:"enabled"`
	Host            string   `koanf:"host" yaml:"host"`
	Port            int      `koanf:"port" yaml:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig holds the user-facing logging knobs; cmd/devflow maps them onto logging.Config.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// TelemetryConfig holds the user-facing OpenTelemetry knobs.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled" yaml:"enabled"`
	Endpoint    string  `koanf:"endpoint" yaml:"endpoint"`
	Protocol    string  `koanf:"protocol" yaml:"protocol"`
	Insecure    bool    `koanf:"insecure" yaml:"insecure"`
	SampleRate  float64 `koanf:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `koanf:"service_name" yaml:"service_name"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Tracker: TrackerConfig{
			Binary:     "task-master",
			WorkDir:    ".",
			Timeout:    Duration(10 * time.Minute),
			Research:   true,
			ReportPath: "scripts/task-complexity-report.json",
			TasksFile:  "tasks/tasks.json",
			Burst:      1,
		},
		Agent: AgentConfig{
			Timeout:   Duration(30 * time.Minute),
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Verify: VerifyConfig{
			Lint: CommandConfig{Timeout: Duration(5 * time.Minute)},
			Test: CommandConfig{Timeout: Duration(15 * time.Minute)},
		},
		Git: GitConfig{
			RepoPath:   ".",
			AllowEmpty: true,
			SecretScan: true,
		},
		Workflow: WorkflowConfig{
			ComplexityThreshold: 8,
			IterationDelay:      Duration(time.Second),
		},
		Status: StatusConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "devflow",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Tracker.Binary == "" {
		return errors.New("tracker.binary is required")
	}
	if c.Tracker.Timeout.Duration() <= 0 {
		return errors.New("tracker.timeout must be positive")
	}
	if c.Tracker.ReportPath == "" {
		return errors.New("tracker.report_path is required")
	}
	if c.Tracker.RateLimit < 0 {
		return fmt.Errorf("tracker.rate_limit must be >= 0, got %v", c.Tracker.RateLimit)
	}
	if c.Tracker.RateLimit > 0 && c.Tracker.Burst < 1 {
		return fmt.Errorf("tracker.burst must be >= 1 when rate limiting, got %d", c.Tracker.Burst)
	}
	if c.Agent.Binary != "" && c.Agent.Timeout.Duration() <= 0 {
		return errors.New("agent.timeout must be positive")
	}
	if c.Workflow.ComplexityThreshold <= 0 {
		return fmt.Errorf("workflow.complexity_threshold must be positive, got %v", c.Workflow.ComplexityThreshold)
	}
	if c.Workflow.MaxIterations < 0 {
		return fmt.Errorf("workflow.max_iterations must be >= 0, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.Watch && c.Tracker.TasksFile == "" {
		return errors.New("tracker.tasks_file is required in watch mode")
	}
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		return fmt.Errorf("invalid status port: %d (must be 1-65535)", c.Status.Port)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}
	return nil
}
