package tracker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const nextOutput = "\n...\n" +
	"╭──────────────────────────────────────────────────────────────────────────╮\n" +
	"│ Next Task: #1.3 - Develop Robust Output Parsing Logic                    │\n" +
	"╰──────────────────────────────────────────────────────────────────────────╯\n" +
	"...\n"

const titleTable = "┌───────────────┬───────────────────────────────────────────────────────────────────────────┐\n" +
	"│ ID:           │ 1.3                                                                       │\n" +
	"│ Title:        │ Develop Robust Output Parsing Logic                                       │\n" +
	"└───────────────┴───────────────────────────────────────────────────────────────────────────┘\n"

const detailsBox = "╭───────────────────────────────────────────────────────────────────────────────────────────────────────╮\n" +
	"│ Implementation Details:                                                                               │\n" +
	"│                                                                                                       │\n" +
	"│ Develop functions... handle inconsistencies. │\n" +
	"╰───────────────────────────────────────────────────────────────────────────────────────────────────────╯\n"

const strategyBox = "╭───────────────────────────────────────────────────────────────────────────────────────────────────────╮\n" +
	"│ Test Strategy:                                                                                        │\n" +
	"│                                                                                                       │\n" +
	"│ Create unit tests... good and bad formats.           │\n" +
	"╰───────────────────────────────────────────────────────────────────────────────────────────────────────╯\n"

func showOutput(sections ...string) string {
	return "\n...\n" + strings.Join(sections, "...\n") + "...\n"
}

func TestParseNext(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   NextTask
		wantOK bool
	}{
		{"boxed", nextOutput, NextTask{ID: "1.3", Title: "Develop Robust Output Parsing Logic"}, true},
		{"plain line", "Next Task: #7 - Implement Task Completion Status Update\nmore", NextTask{ID: "7", Title: "Implement Task Completion Status Update"}, true},
		{"end of text", "Next Task: #10 - Implement Complexity Analysis", NextTask{ID: "10", Title: "Implement Complexity Analysis"}, true},
		{"crlf", "Next Task: #9 - Fix Tests \r\nrest", NextTask{ID: "9", Title: "Fix Tests"}, true},
		{"subtask id", "│ Next Task: #10.2.1 - Deep │", NextTask{ID: "10.2.1", Title: "Deep"}, true},
		{"no tasks", "No tasks available.", NextTask{}, false},
		{"random text", "Some random text that doesn't match", NextTask{}, false},
		{"empty title", "│ Next Task: #4 - │", NextTask{}, false},
		{"dots only", "Next Task: #.. - Title", NextTask{}, false},
		{"empty", "", NextTask{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNext(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseShow_AllSections(t *testing.T) {
	d := ParseShow(showOutput(titleTable, detailsBox, strategyBox))

	assert.Equal(t, "Develop Robust Output Parsing Logic", d.Title)
	assert.Equal(t, "Develop functions... handle inconsistencies.", d.Details)
	assert.Equal(t, "Create unit tests... good and bad formats.", d.TestStrategy)
	assert.Empty(t, d.Missing())
}

func TestParseShow_Independence(t *testing.T) {
	tests := []struct {
		name     string
		sections []string
		missing  string
	}{
		{"no title", []string{detailsBox, strategyBox}, FieldTitle},
		{"no details", []string{titleTable, strategyBox}, FieldDetails},
		{"no strategy", []string{titleTable, detailsBox}, FieldTestStrategy},
	}

	full := ParseShow(showOutput(titleTable, detailsBox, strategyBox))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseShow(showOutput(tt.sections...))
			assert.Equal(t, []string{tt.missing}, d.Missing())

			if tt.missing != FieldTitle {
				assert.Equal(t, full.Title, d.Title)
			}
			if tt.missing != FieldDetails {
				assert.Equal(t, full.Details, d.Details)
			}
			if tt.missing != FieldTestStrategy {
				assert.Equal(t, full.TestStrategy, d.TestStrategy)
			}
		})
	}
}

func TestParseShow_Unparseable(t *testing.T) {
	d := ParseShow("Missing important sections")
	assert.Equal(t, Details{}, d)
	assert.Equal(t, []string{FieldTitle, FieldDetails, FieldTestStrategy}, d.Missing())
}

func TestParseShow_WrappedLines(t *testing.T) {
	box := "╭────────────────────────────╮\r\n" +
		"│ Implementation Details:    │\r\n" +
		"│                            │\r\n" +
		"│ 1. Add the handler         │\r\n" +
		"│ 2. Wire it into the router │\r\n" +
		"│                            │\r\n" +
		"│ Keep it small.             │\r\n" +
		"╰────────────────────────────╯\r\n"

	d := ParseShow(box)
	assert.Equal(t, "1. Add the handler\n2. Wire it into the router\nKeep it small.", d.Details)
}

func TestParseShow_UnclosedBox(t *testing.T) {
	d := ParseShow("│ Implementation Details: │\n│ never closed │\n")
	assert.Empty(t, d.Details)
}

func TestParseShow_OrderIndependent(t *testing.T) {
	a := ParseShow(showOutput(titleTable, detailsBox, strategyBox))
	b := ParseShow(showOutput(strategyBox, titleTable, detailsBox))
	assert.Equal(t, a, b)
}

func TestParse_Idempotent(t *testing.T) {
	text := showOutput(titleTable, detailsBox, strategyBox)
	assert.Equal(t, ParseShow(text), ParseShow(text))

	n1, ok1 := ParseNext(nextOutput)
	n2, ok2 := ParseNext(nextOutput)
	assert.Equal(t, n1, n2)
	assert.Equal(t, ok1, ok2)
}

func FuzzParseNext(f *testing.F) {
	f.Add(nextOutput)
	f.Add("Next Task: #7 - X")
	f.Add("Next Task: #")
	f.Add("│╰\r\n")

	f.Fuzz(func(t *testing.T, text string) {
		next, ok := ParseNext(text)
		if !ok {
			if next != (NextTask{}) {
				t.Fatalf("non-zero task without ok: %+v", next)
			}
			return
		}
		if next.ID == "" || next.Title == "" {
			t.Fatalf("ok with empty field: %+v", next)
		}
		if strings.Trim(next.ID, "0123456789.") != "" {
			t.Fatalf("id outside charset: %q", next.ID)
		}
		again, _ := ParseNext(text)
		if again != next {
			t.Fatalf("not deterministic: %+v vs %+v", next, again)
		}
	})
}

func FuzzParseShow(f *testing.F) {
	f.Add(showOutput(titleTable, detailsBox, strategyBox))
	f.Add("Title: │ x │")
	f.Add("Implementation Details:╰Test Strategy:╰")
	f.Add("")

	f.Fuzz(func(t *testing.T, text string) {
		d := ParseShow(text)
		for _, field := range []string{d.Title, d.Details, d.TestStrategy} {
			if field != strings.TrimSpace(field) {
				t.Fatalf("field not trimmed: %q", field)
			}
		}
		if again := ParseShow(text); again != d {
			t.Fatalf("not deterministic: %+v vs %+v", d, again)
		}
	})
}
