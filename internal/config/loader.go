package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix of environment variables read by the loader.
	EnvPrefix = "DEVFLOW_"

	// ProjectFileName is the per-project config file looked up in the project directory.
	ProjectFileName = ".devflow.yaml"
)

// LoadWithFile loads configuration from a YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DEVFLOW_TRACKER_BINARY, DEVFLOW_WORKFLOW_MAX_ITERATIONS, etc.)
//  2. YAML config file
//  3. Default()
//
// When configPath is empty the loader looks for <projectDir>/.devflow.yaml and
// then ~/.config/devflow/config.yaml; neither has to exist.
//
// # Security Considerations
//
// The file names executables that devflow will run, so it is rejected when it is
// group or world writable, larger than 1MB, or outside the allowed directories:
//   - the project directory
//   - ~/.config/devflow/
//   - /etc/devflow/
//
// # Environment Variable Mapping
//
// The DEVFLOW_ prefix is stripped and the remainder split on its first underscore:
//
//	DEVFLOW_TRACKER_BINARY          -> tracker.binary
//	DEVFLOW_WORKFLOW_ITERATION_DELAY -> workflow.iteration_delay
//	DEVFLOW_VERIFY_LINT_BINARY      -> verify.lint.binary
//
// List values are comma separated: DEVFLOW_AGENT_ARGS="-p,--verbose".
func LoadWithFile(configPath, projectDir string) (*Config, error) {
	k := koanf.New(".")

	if projectDir == "" {
		projectDir = "."
	}

	explicit := configPath != ""
	if !explicit {
		found, err := findConfigFile(projectDir)
		if err != nil {
			return nil, err
		}
		configPath = found
	}

	if configPath != "" {
		if err := validateConfigPath(configPath, projectDir); err != nil {
			return nil, fmt.Errorf("config path validation failed: %w", err)
		}
		if err := loadFile(k, configPath, explicit); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg, projectDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load loads configuration for the current working directory using the default search path.
func Load() (*Config, error) {
	return LoadWithFile("", ".")
}

// envKey maps DEVFLOW_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}

	section, field := parts[0], parts[1]

	// verify has nested command blocks: verify.lint.binary, verify.test.args.
	if section == "verify" {
		if sub := strings.SplitN(field, "_", 2); len(sub) == 2 && (sub[0] == "lint" || sub[0] == "test") {
			return section + "." + sub[0] + "." + sub[1]
		}
	}

	return section + "." + field
}

// findConfigFile returns the first existing default config file, or "" if there is none.
func findConfigFile(projectDir string) (string, error) {
	candidates := []string{filepath.Join(projectDir, ProjectFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "devflow", "config.yaml"))
	}

	for _, c := range candidates {
		_, err := os.Stat(c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat config file %s: %w", c, err)
		}
	}
	return "", nil
}

// loadFile reads configPath into k. A missing file is an error only when the path was given explicitly.
func loadFile(k *koanf.Koanf, configPath string, explicit bool) error {
	// Open once and validate via the descriptor to avoid a TOCTOU race.
	f, err := os.Open(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return nil
}

// validateConfigPath checks that path lives in one of the allowed directories.
func validateConfigPath(path, projectDir string) error {
	resolvedPath, err := resolve(path)
	if err != nil {
		return err
	}

	allowedDirs := []string{"/etc/devflow"}
	if project, err := resolve(projectDir); err == nil {
		allowedDirs = append(allowedDirs, project)
	}
	if home, err := os.UserHomeDir(); err == nil {
		allowedDirs = append(allowedDirs, filepath.Join(home, ".config", "devflow"))
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in the project directory, ~/.config/devflow/ or /etc/devflow/")
}

// resolve returns the absolute, symlink-free form of path. Paths that do not
// exist yet keep their absolute form.
func resolve(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}
	return absPath, nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults fills values that an explicit empty setting would otherwise leave unusable.
func applyDefaults(cfg *Config, projectDir string) {
	if cfg.Tracker.WorkDir == "" || cfg.Tracker.WorkDir == "." {
		cfg.Tracker.WorkDir = projectDir
	}
	if cfg.Git.RepoPath == "" || cfg.Git.RepoPath == "." {
		cfg.Git.RepoPath = cfg.Tracker.WorkDir
	}
	if cfg.Tracker.Burst == 0 {
		cfg.Tracker.Burst = 1
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "devflow"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}
