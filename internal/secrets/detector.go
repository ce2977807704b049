package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// scanChunkSize bounds how much of a staged file is held and scanned at once.
// Larger files are scanned chunk by chunk on line boundaries.
const scanChunkSize = 2 * 1024 * 1024

// Finding represents a detected secret with location information.
type Finding struct {
	File     string // repo-relative path, empty for Detect
	RuleID   string // Gitleaks rule ID (e.g., "github-pat")
	RuleDesc string
	Line     int
	Match    string // the secret itself; never log it
}

// String describes the finding without the secret value.
func (f Finding) String() string {
	if f.File == "" {
		return fmt.Sprintf("%s at line %d", f.RuleID, f.Line)
	}
	return fmt.Sprintf("%s in %s:%d", f.RuleID, f.File, f.Line)
}

// Detector scans content with the default Gitleaks rules plus an allowlist.
type Detector struct {
	detector  *detect.Detector
	skipPaths []*regexp.Regexp
	chunkSize int
}

// NewDetector builds a detector. allowlist may be nil.
func NewDetector(allowlist *Allowlist) (*Detector, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}

	d := &Detector{detector: detector, chunkSize: scanChunkSize}
	if allowlist == nil {
		return d, nil
	}

	for _, p := range allowlist.Paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		d.skipPaths = append(d.skipPaths, re)
	}
	if err := applyAllowlist(&detector.Config, allowlist); err != nil {
		return nil, err
	}
	return d, nil
}

// applyAllowlist appends the content patterns to the Gitleaks global allowlists.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	if len(allowlist.Regexes) == 0 {
		return nil
	}

	global := &gitleaksConfig.Allowlist{Description: "devflow repository/user allowlist"}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}

// Detect scans a string.
func (d *Detector) Detect(content string) []Finding {
	found := d.detector.DetectString(content)
	result := make([]Finding, 0, len(found))
	for _, f := range found {
		result = append(result, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			Match:    f.Secret,
		})
	}
	return result
}

// ScanFiles scans the given repo-relative paths under root. Deleted files,
// binary files and allowlisted paths are skipped. Files of any size are
// scanned in full.
func (d *Detector) ScanFiles(root string, paths []string) ([]Finding, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var findings []Finding
	for _, rel := range sorted {
		if d.skipPath(rel) {
			continue
		}
		found, err := d.scanFile(filepath.Join(root, rel), rel)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

func (d *Detector) skipPath(rel string) bool {
	slashed := filepath.ToSlash(rel)
	for _, re := range d.skipPaths {
		if re.MatchString(slashed) {
			return true
		}
	}
	return false
}

// scanFile scans one file in chunks of whole lines, so a secret never spans
// two chunks unless a single line is longer than the chunk size. Missing and
// non-regular files are skipped, as are files whose first chunk holds a NUL
// byte.
func (d *Detector) scanFile(path, rel string) ([]Finding, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var (
		findings []Finding
		chunk    bytes.Buffer
		lines    int
		first    = true
	)
	// flush scans the buffered lines. It reports false for binary content.
	flush := func() bool {
		if chunk.Len() == 0 {
			return true
		}
		if first && bytes.IndexByte(chunk.Bytes(), 0) >= 0 {
			return false
		}
		first = false
		for _, fd := range d.Detect(chunk.String()) {
			fd.File = rel
			fd.Line += lines
			findings = append(findings, fd)
		}
		lines += bytes.Count(chunk.Bytes(), []byte{'\n'})
		chunk.Reset()
		return true
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadSlice('\n')
		chunk.Write(line)
		if chunk.Len() >= d.chunkSize && !errors.Is(err, bufio.ErrBufferFull) {
			if !flush() {
				return nil, nil
			}
		}
		if err == nil || errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return nil, err
	}
	if !flush() {
		return nil, nil
	}
	return findings, nil
}
