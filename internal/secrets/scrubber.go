package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Redaction replaces every masked span.
const Redaction = "[REDACTED]"

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber masks credentials in text before it is logged or embedded in a
// prompt. A nil *Scrubber returns text unchanged.
type Scrubber struct {
	rules []compiledRule
	allow []*regexp.Regexp
}

// Scrubbed is the result of one Scrub call.
type Scrubbed struct {
	Text   string
	ByRule map[string]int
}

// Count returns the number of masked spans.
func (s Scrubbed) Count() int {
	n := 0
	for _, c := range s.ByRule {
		n += c
	}
	return n
}

// NewScrubber compiles rules. Matches fully matched by one of the allow
// patterns are left in place.
func NewScrubber(rules []Rule, allow []string) (*Scrubber, error) {
	s := &Scrubber{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRegex, r.ID, err)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kws = append(kws, strings.ToLower(kw))
		}
		s.rules = append(s.rules, compiledRule{id: r.ID, pattern: re, keywords: kws})
	}

	for _, p := range allow {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// NewOutputScrubber builds a Scrubber from OutputRules and the content
// patterns of allowlist, which may be nil.
func NewOutputScrubber(allowlist *Allowlist) (*Scrubber, error) {
	var allow []string
	if allowlist != nil {
		allow = allowlist.Regexes
	}
	return NewScrubber(OutputRules(), allow)
}

type span struct{ start, end int }

// Scrub masks every rule match in content.
func (s *Scrubber) Scrub(content string) Scrubbed {
	out := Scrubbed{Text: content, ByRule: map[string]int{}}
	if s == nil || content == "" {
		return out
	}

	lower := strings.ToLower(content)
	var spans []span
	for _, r := range s.rules {
		if !hasKeyword(lower, r.keywords) {
			continue
		}
		for _, m := range r.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{m[0], m[1]})
			out.ByRule[r.id]++
		}
	}
	if len(spans) == 0 {
		return out
	}

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(Redaction)
		last = sp.end
	}
	b.WriteString(content[last:])
	out.Text = b.String()
	return out
}

// String is Scrub without the per-rule counts.
func (s *Scrubber) String(content string) string {
	return s.Scrub(content).Text
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if loc := re.FindStringIndex(match); loc != nil && loc[0] == 0 && loc[1] == len(match) {
			return true
		}
	}
	return false
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or touching ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
