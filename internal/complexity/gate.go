package complexity

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultThreshold is the score at or above which a task is expanded.
const DefaultThreshold = 8.0

// Decision is the outcome of evaluating one task.
type Decision struct {
	NeedsExpansion  bool
	Found           bool
	Score           float64
	ExpansionPrompt string
}

// Gate compares report scores against a threshold.
type Gate struct {
	threshold float64
	logger    *zap.Logger
}

// NewGate creates a Gate. A non-positive threshold selects DefaultThreshold.
func NewGate(threshold float64, logger *zap.Logger) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{threshold: threshold, logger: logger}
}

// Threshold returns the expansion threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Evaluate decides whether taskID needs expansion according to report.
// A task without a record never needs expansion.
func (g *Gate) Evaluate(taskID string, report *Report) Decision {
	rec, ok := report.Find(taskID)
	if !ok {
		g.logger.Warn("no complexity record for task", zap.String("task_id", taskID))
		return Decision{}
	}

	d := Decision{
		Found:           true,
		Score:           rec.Score,
		NeedsExpansion:  rec.Score >= g.threshold,
		ExpansionPrompt: strings.TrimSpace(rec.ExpansionPrompt),
	}
	g.logger.Debug("complexity evaluated",
		zap.String("task_id", taskID),
		zap.Float64("score", d.Score),
		zap.Float64("threshold", g.threshold),
		zap.Bool("needs_expansion", d.NeedsExpansion),
	)
	return d
}

// EvaluateFile loads the report at path and evaluates taskID. A missing,
// unreadable or malformed report never requests expansion.
func (g *Gate) EvaluateFile(path, taskID string) Decision {
	report, err := LoadReport(path)
	if err != nil {
		g.logger.Warn("complexity report unavailable, skipping expansion check",
			zap.String("path", path),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return Decision{}
	}
	return g.Evaluate(taskID, report)
}
