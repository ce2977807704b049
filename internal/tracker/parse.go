package tracker

import (
	"regexp"
	"strings"
)

// Box-drawing characters used by the tracker's terminal rendering.
const (
	boxVertical   = "│"
	boxBottomLeft = "╰"
)

// Section labels in `show` output.
const (
	labelDetails      = "Implementation Details:"
	labelTestStrategy = "Test Strategy:"
)

var (
	// nextPattern matches "Next Task: #<id> - <title>" up to a box border or end of line.
	nextPattern = regexp.MustCompile(`(?m)Next Task: #([0-9.]+) - (.*?)[ \t]*(?:│|$)`)

	// titlePattern matches the Title cell of the show table.
	titlePattern = regexp.MustCompile(`Title:[ \t]*│[ \t]*(.*?)[ \t]*│`)
)

// NextTask is the task announced by `next`.
type NextTask struct {
	ID    string
	Title string
}

// ParseNext extracts the next task announcement. It returns false when the
// text has no announcement, which is the normal answer once no tasks remain.
func ParseNext(text string) (NextTask, bool) {
	m := nextPattern.FindStringSubmatch(normalize(text))
	if m == nil {
		return NextTask{}, false
	}

	next := NextTask{
		ID:    strings.TrimSpace(m[1]),
		Title: strings.TrimSpace(m[2]),
	}
	if next.ID == "" || next.Title == "" || strings.Trim(next.ID, ".") == "" {
		return NextTask{}, false
	}
	return next, true
}

// Details holds the fields extracted from `show`. Empty means not found.
type Details struct {
	Title        string
	Details      string
	TestStrategy string
}

// Field names reported by Missing.
const (
	FieldTitle        = "title"
	FieldDetails      = "details"
	FieldTestStrategy = "test_strategy"
)

// Missing lists the fields that could not be extracted.
func (d Details) Missing() []string {
	var missing []string
	if d.Title == "" {
		missing = append(missing, FieldTitle)
	}
	if d.Details == "" {
		missing = append(missing, FieldDetails)
	}
	if d.TestStrategy == "" {
		missing = append(missing, FieldTestStrategy)
	}
	return missing
}

// ParseShow extracts the title cell and the two labelled boxes from `show`
// output. Each field is extracted independently of the others.
func ParseShow(text string) Details {
	text = normalize(text)

	var d Details
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		d.Title = strings.TrimSpace(m[1])
	}
	d.Details = boxSection(text, labelDetails)
	d.TestStrategy = boxSection(text, labelTestStrategy)
	return d
}

// boxSection returns the content between label and the next closing box
// corner, with border decoration and blank lines removed. An unclosed box
// yields "".
func boxSection(text, label string) string {
	start := strings.Index(text, label)
	if start < 0 {
		return ""
	}
	body := text[start+len(label):]

	end := strings.Index(body, boxBottomLeft)
	if end < 0 {
		return ""
	}
	body = body[:end]

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, boxVertical)
		line = strings.TrimSuffix(line, boxVertical)
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}
