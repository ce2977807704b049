package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ProjectAllowlistFile is the gitleaks config read from the repository root.
const ProjectAllowlistFile = ".gitleaks.toml"

// Allowlist contains path and content regex patterns to exclude from secret detection.
type Allowlist struct {
	Paths   []string // file path patterns, matched against repo-relative paths
	Regexes []string // content patterns
}

// LoadAllowlists merges the repository's .gitleaks.toml with a user allowlist.
// Missing files are ignored; invalid TOML or patterns return errors.
//
// repoDir: directory containing .gitleaks.toml (empty string to skip)
// userPath: full path to a user allowlist.toml (empty string to skip)
func LoadAllowlists(repoDir, userPath string) (*Allowlist, error) {
	merged := &Allowlist{}

	var files []string
	if repoDir != "" {
		files = append(files, filepath.Join(repoDir, ProjectAllowlistFile))
	}
	if userPath != "" {
		files = append(files, userPath)
	}

	for _, f := range files {
		list, err := loadTOML(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Paths = append(merged.Paths, list.Paths...)
		merged.Regexes = append(merged.Regexes, list.Regexes...)
	}

	return merged, nil
}

// loadTOML loads and validates the [allowlist] table of a single file.
func loadTOML(path string) (*Allowlist, error) {
	var doc struct {
		Allowlist struct {
			Paths   []string `toml:"paths"`
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range append(append([]string(nil), doc.Allowlist.Paths...), doc.Allowlist.Regexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   doc.Allowlist.Paths,
		Regexes: doc.Allowlist.Regexes,
	}, nil
}
