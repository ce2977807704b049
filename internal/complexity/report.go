// Package complexity reads the tracker's complexity report and decides
// whether a task should be expanded into subtasks before implementation.
package complexity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// maxReportSize bounds how much of a report file is read.
const maxReportSize = 16 * 1024 * 1024

// TaskID is a tracker task identifier. The report writes it as a JSON number
// for top-level tasks and may write a string for subtasks; both decode to the
// literal text, so 10.2 stays "10.2".
type TaskID string

// UnmarshalJSON accepts a JSON string or number.
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("taskId must be a string or number: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

// Record is one entry of the report's complexityAnalysis list.
type Record struct {
	TaskID              TaskID  `json:"taskId"`
	TaskTitle           string  `json:"taskTitle,omitempty"`
	Score               float64 `json:"complexityScore"`
	RecommendedSubtasks int     `json:"recommendedSubtasks,omitempty"`
	ExpansionPrompt     string  `json:"expansionPrompt,omitempty"`
	Reasoning           string  `json:"reasoning,omitempty"`
}

// Meta describes how the report was produced.
type Meta struct {
	GeneratedAt    string  `json:"generatedAt,omitempty"`
	TasksAnalyzed  int     `json:"tasksAnalyzed,omitempty"`
	ThresholdScore float64 `json:"thresholdScore,omitempty"`
	ProjectName    string  `json:"projectName,omitempty"`
	UsedResearch   bool    `json:"usedResearch,omitempty"`
}

// Report is the persisted output of analyze-complexity.
type Report struct {
	Meta     Meta     `json:"meta"`
	Analysis []Record `json:"complexityAnalysis"`
}

// Find returns the record whose task id equals id.
func (r *Report) Find(id string) (Record, bool) {
	if r == nil {
		return Record{}, false
	}
	for _, rec := range r.Analysis {
		if string(rec.TaskID) == id {
			return rec, true
		}
	}
	return Record{}, false
}

// ErrReportTooLarge is returned for report files over the size limit.
var ErrReportTooLarge = errors.New("complexity report too large")

// LoadReport reads and decodes a report file.
func LoadReport(path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxReportSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrReportTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding complexity report %s: %w", path, err)
	}
	return &r, nil
}
