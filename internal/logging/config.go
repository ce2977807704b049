package logging

import (
	"fmt"
	"regexp"

	"github.com/bestyec/DevFlowCheck/internal/config"
	"go.uber.org/zap/zapcore"
)

// TraceLevel is a custom level below Debug for ultra-verbose logging,
// such as full tracker output and composed prompts.
// Value: -2 (Debug is -1, Info is 0)
const TraceLevel = zapcore.Level(-2)

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level
	Format     string
	Output     OutputConfig
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string
	Redaction  RedactionConfig
}

// OutputConfig controls where logs are written.
// Console output goes to stderr so stdout stays free for command results.
type OutputConfig struct {
	Console bool
	OTEL    bool
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns config with defaults suited to an interactive CLI.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "console",
		Output: OutputConfig{
			Console: true,
		},
		Caller: CallerConfig{
			Enabled: false,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.DPanicLevel,
		},
		Fields: map[string]string{
			"service": "devflow",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "credential", "private_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`sk-ant-[A-Za-z0-9_-]{8,}`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// ConfigFrom builds a logging config from the user-facing log section.
func ConfigFrom(lc config.LogConfig, otel bool) (*Config, error) {
	cfg := NewDefaultConfig()

	if lc.Level != "" {
		level, err := LevelFromString(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	if cfg.Level <= zapcore.DebugLevel {
		cfg.Caller.Enabled = true
	}
	cfg.Output.OTEL = otel

	return cfg, cfg.Validate()
}

// LevelFromString parses a string into a zapcore.Level, supporting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Console && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (console or otel)")
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}

	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}

	return nil
}
